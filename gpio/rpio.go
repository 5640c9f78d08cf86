package gpio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"lautenbacher.net/p9813leds/p9813"
)

// rpio maps the GPIO registers once for the whole process; the mapping is
// released when the last line is closed.
var (
	rpioMu    sync.Mutex
	rpioUsers int
)

type rpioLine struct {
	mu     sync.Mutex
	pin    rpio.Pin
	closed bool
}

func openRpio(pin int) (p9813.Line, error) {
	rpioMu.Lock()
	defer rpioMu.Unlock()
	if rpioUsers == 0 {
		if err := rpio.Open(); err != nil {
			return nil, fmt.Errorf("failed to open rpio: %w", err)
		}
	}
	rpioUsers++

	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	return &rpioLine{pin: p}, nil
}

func (l *rpioLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLineClosed
	}
	if high {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	return nil
}

func (l *rpioLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.pin.Low()
	l.pin.Input()

	rpioMu.Lock()
	defer rpioMu.Unlock()
	rpioUsers--
	if rpioUsers > 0 {
		return nil
	}
	slog.Debug("Releasing rpio register mapping")
	return rpio.Close()
}
