// Package gcode recognises the few g-code lines and @ commands that
// influence the strip.
package gcode

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"lautenbacher.net/p9813leds/led"
)

// Heater ids as reported by M105.
const (
	BedHeater   = "B"
	DefaultTool = "T0"
)

// @ commands, without the leading '@'.
const (
	AtLightsOn  = "P9813_LIGHTSON"
	AtLightsOff = "P9813_LIGHTSOFF"
)

var ErrNotM150 = errors.New("gcode: not an M150 command")

// Command is one parsed line. Code is upper case ("M109", "T1"), Params maps
// the parameter letter to its raw value.
type Command struct {
	Code   string
	Params map[byte]string
}

// Parse strips line numbers, checksums and comments. An empty Code means
// there was nothing to parse.
func Parse(line string) Command {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) > 0 && fields[0][0] == 'N' {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return Command{}
	}
	cmd := Command{Code: normaliseCode(fields[0]), Params: make(map[byte]string, len(fields)-1)}
	for _, f := range fields[1:] {
		cmd.Params[f[0]] = f[1:]
	}
	return cmd
}

// normaliseCode turns "M0109" into "M109".
func normaliseCode(code string) string {
	if len(code) < 2 {
		return code
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil || n < 0 {
		return code
	}
	return code[:1] + strconv.Itoa(n)
}

func (c Command) Param(letter byte) (string, bool) {
	v, ok := c.Params[letter]
	return v, ok
}

// ToolSelect reports the tool a "T<n>" line switches to.
func (c Command) ToolSelect() (string, bool) {
	if len(c.Code) < 2 || c.Code[0] != 'T' {
		return "", false
	}
	if _, err := strconv.Atoi(c.Code[1:]); err != nil {
		return "", false
	}
	return c.Code, true
}

// HeatWait reports whether the line blocks until a heater is at
// temperature. For M109 without a T parameter tool is empty and the
// active tool is meant.
func (c Command) HeatWait() (heater string, tool bool, ok bool) {
	switch c.Code {
	case "M109":
		if t, ok := c.Param('T'); ok {
			if n, err := strconv.Atoi(t); err == nil && n >= 0 {
				return "T" + strconv.Itoa(n), true, true
			}
		}
		return "", true, true
	case "M190":
		return BedHeater, false, true
	}
	return "", false, false
}

// M150 returns the colour of an "M150 R<r> U<g> B<b> [W<w>] [P<p>]" line.
// Missing channels are 0, P scales all channels (default 255), W is
// ignored since the strip has no white channel.
func (c Command) M150() (led.Color, error) {
	if c.Code != "M150" {
		return led.Color{}, ErrNotM150
	}
	color := led.Color{
		Red:   c.byteParam('R', 0),
		Green: c.byteParam('U', 0),
		Blue:  c.byteParam('B', 0),
	}
	return color.Scale(c.byteParam('P', 255)), nil
}

// byteParam clamps the parameter to 0..255, a missing or malformed value
// gives def.
func (c Command) byteParam(letter byte, def byte) byte {
	v, ok := c.Param(letter)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return byte(math.Round(math.Max(0, math.Min(255, f))))
}

// AtCommand normalises "@p9813_lightson now" to "P9813_LIGHTSON".
func AtCommand(command string) string {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(command), "@"))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
