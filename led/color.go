package led

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidHex is returned by ParseHex for anything that is not six hex
// digits, optionally prefixed with '#'.
var ErrInvalidHex = errors.New("invalid hex colour")

// Color is the value of a single RGB cell.
type Color struct {
	Red   byte
	Green byte
	Blue  byte
}

var (
	Off   = Color{}
	White = Color{Red: 255, Green: 255, Blue: 255}
	Red   = Color{Red: 255}
	Green = Color{Green: 255}
	Blue  = Color{Blue: 255}
)

// True if all components are zero, false otherwise
func (s Color) IsEmpty() bool {
	return s.Red == 0 && s.Green == 0 && s.Blue == 0
}

// Hex returns the colour as RRGGBB (lower case, no '#').
func (s Color) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", s.Red, s.Green, s.Blue)
}

func (s Color) String() string {
	return "#" + s.Hex()
}

// Scale returns the colour with every component multiplied by
// brightness/255.
func (s Color) Scale(brightness byte) Color {
	scale := func(v byte) byte {
		return byte((uint16(v)*uint16(brightness) + 127) / 255)
	}
	return Color{Red: scale(s.Red), Green: scale(s.Green), Blue: scale(s.Blue)}
}

// ParseHex parses "RRGGBB" or "#RRGGBB".
func ParseHex(hex string) (Color, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("%w %q: want 6 digits, got %d", ErrInvalidHex, hex, len(s))
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w %q: %v", ErrInvalidHex, hex, err)
	}
	return Color{
		Red:   byte(v >> 16),
		Green: byte(v >> 8),
		Blue:  byte(v),
	}, nil
}

// MarshalText encodes the colour as "#rrggbb".
func (s Color) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Color) UnmarshalText(text []byte) error {
	c, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*s = c
	return nil
}
