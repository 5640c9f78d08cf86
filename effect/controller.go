// Package effect decides which colour the strip shows, given printer
// lifecycle events, print progress, heater telemetry and manual commands.
package effect

import (
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"lautenbacher.net/p9813leds/events"
	"lautenbacher.net/p9813leds/gcode"
	"lautenbacher.net/p9813leds/led"
	"lautenbacher.net/p9813leds/util"
)

// Settings are keyed lookups; missing keys yield zero values.
type Settings interface {
	GetBool(key string) bool
	GetInt(key string) int
	GetString(key string) string
}

// Strip is the part of p9813.Strip the controller drives.
type Strip interface {
	SetColor(c led.Color) error
	Close() error
}

// Reading is the temperature of one heater.
type Reading struct {
	Actual float64
	Target float64
}

// State is owned by the controller; callers get copies.
type State struct {
	LightsOn bool
	TorchOn  bool
	// Current is the last mode applied apart from torch. Torch returns to it.
	Current    Mode
	Value      *int
	Heating    bool
	Heater     string
	TempTarget float64
}

// modeOverride marks colours set directly by M150 in the history.
const modeOverride Mode = "m150"

type timerSlot struct {
	task util.Task
	gen  uint64
}

type Option func(*Controller)

func WithScheduler(s util.Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithBus publishes state changes, fired timers and errors.
func WithBus(b *events.Bus) Option {
	return func(c *Controller) { c.bus = b }
}

// WithStatusSink receives a fresh Status after every change.
func WithStatusSink(ae *util.AtomicEvent[Status]) Option {
	return func(c *Controller) { c.sink = ae }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller serialises every state change and transmission behind one
// mutex. Timer callbacks take the same mutex.
type Controller struct {
	mu       sync.Mutex
	strip    Strip
	settings Settings
	sched    util.Scheduler
	bus      *events.Bus
	sink     *util.AtomicEvent[Status]
	now      func() time.Time

	state   State
	color   led.Color
	renders uint64
	timers  [numRoles]timerSlot
	gen     uint64
	tool    string
	closed  bool
	history deque.Deque[Transition]
}

func New(strip Strip, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		strip:    strip,
		settings: settings,
		sched:    util.NewScheduler(),
		now:      time.Now,
		state:    State{Current: ModeOff},
		tool:     gcode.DefaultTool,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ApplyMode applies m without a value. Progress modes need ApplyModeValue.
func (c *Controller) ApplyMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(m, nil)
}

// ApplyModeValue applies m with a percentage, clamped to 0..100. The value
// is ignored for modes that are not progress modes.
func (c *Controller) ApplyModeValue(m Mode, value int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(m, &value)
}

// Must be called with c.mu held
func (c *Controller) applyLocked(mode Mode, value *int) {
	// any mode change interrupts pending transitions
	c.cancelLocked(roleAutoOff)
	c.cancelLocked(roleReturn)

	switch mode {
	case ModeOn:
		c.state.LightsOn = true
		c.setCurrentLocked(mode, nil)
		c.renderLocked(mode, nil, led.White)
		return
	case ModeOff, ModeDisconnected:
		c.state.LightsOn = false
		c.setCurrentLocked(mode, nil)
		c.renderLocked(mode, nil, led.Off)
		return
	case ModeTorch:
		if c.state.TorchOn {
			c.renderLocked(mode, nil, led.White)
		} else {
			c.renderLocked(mode, nil, led.Off)
		}
		return
	}

	spec, ok := configurable[mode]
	if !ok {
		slog.Debug("Ignoring unknown mode", "mode", mode)
		return
	}
	if !c.settings.GetBool(spec.enabledKey) {
		slog.Debug("Mode is disabled, ignoring", "mode", mode)
		return
	}
	if spec.progress {
		if value == nil {
			slog.Warn("Progress mode needs a value, ignoring", "mode", mode)
			return
		}
		v := min(max(*value, 0), 100)
		value = &v
	} else {
		value = nil
	}

	c.state.LightsOn = true
	c.setCurrentLocked(mode, value)
	c.renderLocked(mode, value, c.modeColorLocked(mode, spec))

	if after := spec.after; after != nil {
		next := after.next
		c.armLocked(after.role, c.settings.GetInt(after.delayKey), func() {
			c.applyLocked(next, nil)
		})
	}
}

func (c *Controller) setCurrentLocked(mode Mode, value *int) {
	c.state.Current = mode
	c.state.Value = nil
	if value != nil {
		v := *value
		c.state.Value = &v
	}
}

// modeColorLocked degrades a malformed colour setting to off.
func (c *Controller) modeColorLocked(mode Mode, spec modeSpec) led.Color {
	hex := c.settings.GetString(spec.colorKey)
	color, err := led.ParseHex(hex)
	if err != nil {
		slog.Warn("Invalid colour configured, switching off", "mode", mode, "key", spec.colorKey, "value", hex, "error", err)
		return led.Off
	}
	return color
}

// renderLocked transmits color unless the torch overlay or a closed strip
// prevent it. The change is recorded either way.
func (c *Controller) renderLocked(mode Mode, value *int, color led.Color) {
	rendered := false
	switch {
	case c.state.TorchOn && mode != ModeTorch:
		slog.Debug("Torch active, deferring colour", "mode", mode, "color", color)
	case c.closed:
		slog.Debug("Strip closed, not rendering", "mode", mode)
	default:
		if err := c.strip.SetColor(color); err != nil {
			slog.Error("Failed to transmit colour", "mode", mode, "color", color, "error", err)
			c.bus.Publish(events.TransmitErrorEvent{Error: err.Error(), Timestamp: c.now()})
		} else {
			c.color = color
			c.renders++
			rendered = true
		}
	}
	c.recordLocked(mode, value, color, rendered)
}

// armLocked replaces the timer of role r. Non-positive delays leave the
// role disarmed.
func (c *Controller) armLocked(r role, seconds int, fn func()) {
	c.cancelLocked(r)
	if seconds <= 0 {
		return
	}
	c.gen++
	gen := c.gen
	c.timers[r].gen = gen
	c.timers[r].task = c.sched.AfterFunc(time.Duration(seconds)*time.Second, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// superseded by a cancel or a newer timer of the same role
		if c.timers[r].gen != gen || c.timers[r].task == nil {
			return
		}
		c.timers[r].task = nil
		slog.Debug("Timer fired", "timer", r)
		c.bus.Publish(events.TimerFiredEvent{Role: r.String(), Timestamp: c.now()})
		fn()
	})
	slog.Debug("Timer armed", "timer", r, "seconds", seconds)
}

func (c *Controller) cancelLocked(r role) {
	if t := c.timers[r].task; t != nil {
		t.Cancel()
		c.timers[r].task = nil
	}
}

func (c *Controller) cancelAllLocked() {
	for r := role(0); r < numRoles; r++ {
		c.cancelLocked(r)
	}
}

// reapplyLocked shows the current mode again. If that renders nothing
// (mode disabled meanwhile) the strip is switched off instead.
func (c *Controller) reapplyLocked() {
	before := c.renders
	c.applyLocked(c.state.Current, c.state.Value)
	if c.renders == before && !c.state.TorchOn && !c.closed {
		c.applyLocked(ModeOff, nil)
	}
}

// ToggleLights switches between on and off.
func (c *Controller) ToggleLights() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.LightsOn = !c.state.LightsOn
	slog.Debug("Toggling lights", "on", c.state.LightsOn)
	if c.state.LightsOn {
		c.applyLocked(ModeOn, nil)
	} else {
		c.applyLocked(ModeOff, nil)
	}
}

// ActivateTorch shows full white until the torch timer runs out. Calling it
// again restarts the timer.
func (c *Controller) ActivateTorch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	seconds := c.settings.GetInt("torch_timer")
	c.armLocked(roleTorch, seconds, c.deactivateTorchLocked)
	c.state.TorchOn = true
	slog.Debug("Torch activated", "seconds", seconds)
	c.applyLocked(ModeTorch, nil)
}

// DeactivateTorch returns to the current mode. Without an active torch it
// does nothing.
func (c *Controller) DeactivateTorch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deactivateTorchLocked()
}

func (c *Controller) deactivateTorchLocked() {
	if !c.state.TorchOn {
		return
	}
	c.cancelLocked(roleTorch)
	c.state.TorchOn = false
	slog.Debug("Torch deactivated", "returning_to", c.state.Current)
	c.reapplyLocked()
}

// OnEvent maps printer lifecycle events to modes. Other events are ignored.
func (c *Controller) OnEvent(name string) {
	mode, ok := eventModes[name]
	if !ok {
		slog.Debug("Ignoring event", "event", name)
		return
	}
	c.ApplyMode(mode)
}

// OnPrintProgress is ignored at 100 percent, after success and while a
// heater is tracked.
func (c *Controller) OnPrintProgress(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if percent == 100 || c.state.Current == ModeSuccess || c.state.Heating {
		return
	}
	if c.settings.GetBool("printing_steady") {
		c.applyLocked(ModePrinting, nil)
		return
	}
	c.applyLocked(ModeProgressPrint, &percent)
}

// OnHeaterTelemetry turns the tracked heater's temperature into heat-up
// progress. A tracked heater missing from readings stops the tracking.
func (c *Controller) OnHeaterTelemetry(readings map[string]Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Heating {
		return
	}
	heater := c.state.Heater
	r, ok := readings[heater]
	if !ok {
		slog.Error("Tracked heater missing from temperature readings, stop tracking", "heater", heater)
		c.bus.Publish(events.TelemetryErrorEvent{Heater: heater, Timestamp: c.now()})
		c.stopHeatingLocked()
		return
	}
	if r.Target > 0 {
		c.state.TempTarget = r.Target
	}
	target := c.state.TempTarget
	if target <= 0 {
		return
	}
	percent := min(max(int(math.Round(r.Actual/target*100)), 0), 100)
	c.applyLocked(ModeProgressHeatup, &percent)
}

func (c *Controller) stopHeatingLocked() {
	c.state.Heating = false
	c.state.Heater = ""
	c.state.TempTarget = 0
}

// OnGcode inspects a line sent to the printer. It returns true when the
// line was consumed and must not be forwarded.
func (c *Controller) OnGcode(line string) (handled bool) {
	cmd := gcode.Parse(line)
	if cmd.Code == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tool, ok := cmd.ToolSelect(); ok {
		c.tool = tool
	}

	if heater, tool, ok := cmd.HeatWait(); ok {
		if !c.settings.GetBool("heatup_tool_enabled") && !c.settings.GetBool("heatup_bed_enabled") {
			return false
		}
		if tool && heater == "" {
			heater = c.tool
		}
		c.state.Heating = true
		c.state.Heater = heater
		c.state.TempTarget = heatTarget(cmd)
		slog.Debug("Tracking heat-up", "heater", heater, "target", c.state.TempTarget)
		return false
	}

	c.stopHeatingLocked()

	if cmd.Code == "M150" && c.settings.GetBool("intercept_m150") {
		color, err := cmd.M150()
		if err != nil {
			return false
		}
		c.cancelLocked(roleAutoOff)
		c.cancelLocked(roleReturn)
		c.state.LightsOn = !color.IsEmpty()
		c.renderLocked(modeOverride, nil, color)
		return true
	}
	return false
}

// heatTarget reads the S or R temperature of a heat-wait line.
func heatTarget(cmd gcode.Command) float64 {
	for _, letter := range []byte{'S', 'R'} {
		if v, ok := cmd.Param(letter); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				return f
			}
		}
	}
	return 0
}

// OnAtCommand switches the lights for @P9813_LIGHTSON and @P9813_LIGHTSOFF
// when at-command reaction is enabled.
func (c *Controller) OnAtCommand(command string) {
	if !c.settingsBool("at_command_reaction") {
		return
	}
	switch gcode.AtCommand(command) {
	case gcode.AtLightsOn:
		c.ApplyMode(ModeOn)
	case gcode.AtLightsOff:
		c.ApplyMode(ModeOff)
	default:
		slog.Debug("Ignoring @ command", "command", command)
	}
}

func (c *Controller) settingsBool(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.GetBool(key)
}

// Startup resets the state and switches the strip off.
func (c *Controller) Startup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAllLocked()
	c.closed = false
	c.state = State{Current: ModeOff}
	c.applyLocked(ModeOff, nil)
}

// Shutdown switches off, stops all timers and releases the strip.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.cancelAllLocked()
	c.state.TorchOn = false
	c.applyLocked(ModeOff, nil)
	c.closed = true
	return c.strip.Close()
}

// Reconfigure installs new settings. A non-nil open means the hardware
// changed: the old strip is closed before open is called, the torch is
// dropped and the current mode is shown on the new strip.
func (c *Controller) Reconfigure(settings Settings, open func() Strip) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings

	var err error
	if open != nil {
		c.cancelLocked(roleTorch)
		c.state.TorchOn = false
		c.state.LightsOn = false
		if !c.closed {
			err = c.strip.Close()
		}
		c.strip = open()
		c.closed = false
		slog.Info("Strip reinitialised")
	}
	c.reapplyLocked()
	return err
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.Value != nil {
		v := *s.Value
		s.Value = &v
	}
	return s
}
