package effect

// Mode is a named lighting state.
type Mode string

const (
	ModeOff            Mode = "off"
	ModeOn             Mode = "on"
	ModeIdle           Mode = "idle"
	ModeDisconnected   Mode = "disconnected"
	ModeFailed         Mode = "failed"
	ModeSuccess        Mode = "success"
	ModePaused         Mode = "paused"
	ModePrinting       Mode = "printing"
	ModeProgressPrint  Mode = "progress_print"
	ModeProgressHeatup Mode = "progress_heatup"
	ModeTorch          Mode = "torch"
)

// Modes in display order.
var Modes = []Mode{
	ModeOff, ModeOn, ModeIdle, ModeDisconnected, ModeFailed, ModeSuccess,
	ModePaused, ModePrinting, ModeProgressPrint, ModeProgressHeatup, ModeTorch,
}

type role int

const (
	roleAutoOff role = iota
	roleReturn
	roleTorch
	numRoles
)

func (r role) String() string {
	switch r {
	case roleAutoOff:
		return "auto_off"
	case roleReturn:
		return "return"
	case roleTorch:
		return "torch"
	}
	return "unknown"
}

// followUp is armed after a configurable mode was rendered.
type followUp struct {
	role     role
	delayKey string
	next     Mode
}

// modeSpec describes a mode that is looked up in the settings.
type modeSpec struct {
	enabledKey string
	colorKey   string
	progress   bool
	after      *followUp
}

var configurable = map[Mode]modeSpec{
	ModeIdle:           {after: &followUp{role: roleAutoOff, delayKey: "idle_timeout", next: ModeOff}},
	ModeFailed:         {},
	ModeSuccess:        {after: &followUp{role: roleReturn, delayKey: "success_return_idle", next: ModeIdle}},
	ModePaused:         {},
	ModePrinting:       {},
	ModeProgressPrint:  {progress: true},
	ModeProgressHeatup: {progress: true},
}

func init() {
	for m, spec := range configurable {
		spec.enabledKey = string(m) + "_enabled"
		spec.colorKey = string(m) + "_color"
		configurable[m] = spec
	}
}

// ParseMode accepts the names in Modes.
func ParseMode(s string) (Mode, bool) {
	for _, m := range Modes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Configurable reports whether m has an enabled flag and a colour.
func (m Mode) Configurable() bool {
	_, ok := configurable[m]
	return ok
}

func (m Mode) Progress() bool {
	return configurable[m].progress
}

// eventModes maps printer lifecycle events to modes.
var eventModes = map[string]Mode{
	"Connected":    ModeIdle,
	"Disconnected": ModeDisconnected,
	"PrintFailed":  ModeFailed,
	"PrintDone":    ModeSuccess,
	"PrintPaused":  ModePaused,
}
