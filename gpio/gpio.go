// Package gpio opens the two output lines of the strip on one of the
// supported GPIO libraries. When the hardware cannot be reached the lines
// are simulated, so everything above keeps working headless.
package gpio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/host/v3"

	"lautenbacher.net/p9813leds/config"
	"lautenbacher.net/p9813leds/p9813"
)

var ErrLineClosed = errors.New("gpio: line closed")

// Lines are the clock and data outputs plus the library that serves them.
type Lines struct {
	Clock   p9813.Line
	Data    p9813.Line
	Backend string
}

type opener func(pin int) (p9813.Line, error)

// replaced in tests
var backends = map[string]opener{
	config.LibraryPeriph: openPeriph,
	config.LibraryRpio:   openRpio,
	config.LibrarySim:    openSim,
}

// Open never fails: if the configured library cannot provide both lines a
// warning is logged and simulated lines are returned instead.
func Open(hw config.HardwareConfig) Lines {
	lines, err := openPair(hw.GPIOLibrary, hw.ClockPin, hw.DataPin)
	if err == nil {
		slog.Info("GPIO lines opened", "library", hw.GPIOLibrary, "clock", hw.ClockPin, "data", hw.DataPin)
		return lines
	}
	slog.Warn("GPIO hardware unavailable, using simulated lines", "library", hw.GPIOLibrary, "error", err)
	lines, _ = openPair(config.LibrarySim, hw.ClockPin, hw.DataPin)
	return lines
}

func openPair(library string, clockPin, dataPin int) (Lines, error) {
	open, ok := backends[library]
	if !ok {
		return Lines{}, fmt.Errorf("unknown GPIO library %q", library)
	}
	clock, err := open(clockPin)
	if err != nil {
		return Lines{}, fmt.Errorf("clock pin %d: %w", clockPin, err)
	}
	data, err := open(dataPin)
	if err != nil {
		clock.Close()
		return Lines{}, fmt.Errorf("data pin %d: %w", dataPin, err)
	}
	return Lines{Clock: clock, Data: data, Backend: library}, nil
}

// pinLine drives a periph pin. It serves the periph.io backend and, over a
// gpiotest.Pin, the simulation.
type pinLine struct {
	mu     sync.Mutex
	pin    pgpio.PinIO
	closed bool
}

func newPinLine(pin pgpio.PinIO) (*pinLine, error) {
	if err := pin.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("failed to set %s to output: %w", pin, err)
	}
	return &pinLine{pin: pin}, nil
}

func (l *pinLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLineClosed
	}
	return l.pin.Out(pgpio.Level(high))
}

// High reports the level last driven.
func (l *pinLine) High() bool {
	return l.pin.Read() == pgpio.High
}

func (l *pinLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.pin.Halt()
}

var periphInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

func openPeriph(pin int) (p9813.Line, error) {
	if err := periphInit(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("failed to find pin %d", pin)
	}
	return newPinLine(p)
}

func openSim(pin int) (p9813.Line, error) {
	return newPinLine(&gpiotest.Pin{N: fmt.Sprintf("SIM%d", pin), Num: pin})
}
