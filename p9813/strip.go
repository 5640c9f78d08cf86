// Package p9813 bit-bangs colours to a single P9813 LED driver cell over a
// clock and a data line.
//
// A frame is 32 bits, sent MSB first and framed by 32 zero bits on each side:
//
//	31-30  preamble, always 11
//	29-24  check code: NOT(bit7,bit6) of blue, green, red (2 bits each)
//	23-16  blue
//	15-8   green
//	7-0    red
//
// Every bit is sent by driving data to the bit value and pulsing clock
// low then high.
package p9813

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lautenbacher.net/p9813leds/led"
)

const (
	frameBits = 32
	preamble  = uint32(0b11) << 30
)

// ErrClosed is returned when a colour is sent to a closed strip.
var ErrClosed = errors.New("p9813: strip closed")

// Line is a single digital output.
type Line interface {
	Set(high bool) error
	Close() error
}

// Strip owns the clock and data lines of one P9813 cell. All methods are
// safe for concurrent use; transmissions are serialised.
type Strip struct {
	mu     sync.Mutex
	clock  Line
	data   Line
	delay  time.Duration
	closed bool
	frames uint64
	// replaced in tests
	sleep func(time.Duration)
}

// NewStrip takes ownership of clock and data. delay is the pause after
// each clock transition.
func NewStrip(clock, data Line, delay time.Duration) *Strip {
	return &Strip{
		clock: clock,
		data:  data,
		delay: delay,
		sleep: time.Sleep,
	}
}

// checkCode returns the inverted two most significant bits of v.
func checkCode(v byte) uint32 {
	return uint32(^v>>6) & 0b11
}

// Encode builds the 32 bit payload for c.
func Encode(c led.Color) uint32 {
	code := checkCode(c.Blue)<<4 | checkCode(c.Green)<<2 | checkCode(c.Red)
	frame := preamble | code<<24 | uint32(c.Blue)<<16 | uint32(c.Green)<<8 | uint32(c.Red)
	if frame>>30 != 0b11 {
		panic(fmt.Sprintf("p9813: frame %#08x lost its preamble", frame))
	}
	return frame
}

// Decode is the inverse of Encode. ok is false when the preamble or the
// check code do not match.
func Decode(frame uint32) (c led.Color, ok bool) {
	c = led.Color{
		Red:   byte(frame),
		Green: byte(frame >> 8),
		Blue:  byte(frame >> 16),
	}
	return c, Encode(c) == frame
}

func (s *Strip) pulse() error {
	if err := s.clock.Set(false); err != nil {
		return err
	}
	if s.delay > 0 {
		s.sleep(s.delay)
	}
	if err := s.clock.Set(true); err != nil {
		return err
	}
	if s.delay > 0 {
		s.sleep(s.delay)
	}
	return nil
}

func (s *Strip) sendBit(high bool) error {
	if err := s.data.Set(high); err != nil {
		return err
	}
	return s.pulse()
}

func (s *Strip) sendZeros() error {
	for i := 0; i < frameBits; i++ {
		if err := s.sendBit(false); err != nil {
			return err
		}
	}
	return nil
}

// Must be called with s.mu held
func (s *Strip) transmit(frame uint32) error {
	if err := s.sendZeros(); err != nil {
		return fmt.Errorf("p9813: start frame: %w", err)
	}
	for i := frameBits - 1; i >= 0; i-- {
		if err := s.sendBit(frame&(1<<i) != 0); err != nil {
			return fmt.Errorf("p9813: data bit %d: %w", i, err)
		}
	}
	if err := s.sendZeros(); err != nil {
		return fmt.Errorf("p9813: latch frame: %w", err)
	}
	return nil
}

// SetColor transmits c and blocks until all clock pulses are sent.
func (s *Strip) SetColor(c led.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.transmit(Encode(c)); err != nil {
		return err
	}
	s.frames++
	return nil
}

// Transmitted returns the number of colours sent completely.
func (s *Strip) Transmitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Strip) SetRGB(red, green, blue byte) error {
	return s.SetColor(led.Color{Red: red, Green: green, Blue: blue})
}

func (s *Strip) SetWhite() error { return s.SetColor(led.White) }
func (s *Strip) SetOff() error   { return s.SetColor(led.Off) }
func (s *Strip) SetRed() error   { return s.SetColor(led.Red) }
func (s *Strip) SetGreen() error { return s.SetColor(led.Green) }
func (s *Strip) SetBlue() error  { return s.SetColor(led.Blue) }

// SetHex transmits a RRGGBB colour. Malformed input is logged and turns the
// cell off; only line errors are returned. The colour actually sent is
// returned in both cases.
func (s *Strip) SetHex(hex string) (led.Color, error) {
	c, err := led.ParseHex(hex)
	if err != nil {
		slog.Error("Error converting hex input to a colour, switching off", "input", hex, "error", err)
		c = led.Off
	}
	return c, s.SetColor(c)
}

// Close switches the cell off and releases both lines. Closing an already
// closed strip does nothing.
func (s *Strip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(
		s.transmit(Encode(led.Off)),
		s.clock.Close(),
		s.data.Close(),
	)
}
