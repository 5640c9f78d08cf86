package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/p9813leds/config"
	"lautenbacher.net/p9813leds/p9813"
)

type recordingLine struct {
	closed bool
}

func (l *recordingLine) Set(bool) error { return nil }
func (l *recordingLine) Close() error   { l.closed = true; return nil }

func withBackend(t *testing.T, library string, open opener) {
	t.Helper()
	saved := backends[library]
	backends[library] = open
	t.Cleanup(func() { backends[library] = saved })
}

func TestOpen_Sim(t *testing.T) {
	lines := Open(config.HardwareConfig{ClockPin: 23, DataPin: 24, GPIOLibrary: config.LibrarySim})
	assert.Equal(t, config.LibrarySim, lines.Backend)
	require.NotNil(t, lines.Clock)
	require.NotNil(t, lines.Data)

	clock := lines.Clock.(*pinLine)
	assert.False(t, clock.High(), "lines start low")
	require.NoError(t, clock.Set(true))
	assert.True(t, clock.High())
	require.NoError(t, clock.Set(false))
	assert.False(t, clock.High())
}

func TestOpen_FallsBackToSim(t *testing.T) {
	withBackend(t, config.LibraryPeriph, func(int) (p9813.Line, error) {
		return nil, errors.New("no gpio chip")
	})
	lines := Open(config.HardwareConfig{ClockPin: 23, DataPin: 24, GPIOLibrary: config.LibraryPeriph})
	assert.Equal(t, config.LibrarySim, lines.Backend)
	assert.NoError(t, lines.Clock.Set(true))
}

func TestOpen_UnknownLibraryFallsBack(t *testing.T) {
	lines := Open(config.HardwareConfig{ClockPin: 1, DataPin: 2, GPIOLibrary: "wiringpi"})
	assert.Equal(t, config.LibrarySim, lines.Backend)
}

func TestOpen_DataFailureReleasesClock(t *testing.T) {
	var opened []*recordingLine
	withBackend(t, config.LibraryRpio, func(pin int) (p9813.Line, error) {
		if pin == 24 {
			return nil, errors.New("busy")
		}
		l := &recordingLine{}
		opened = append(opened, l)
		return l, nil
	})
	lines := Open(config.HardwareConfig{ClockPin: 23, DataPin: 24, GPIOLibrary: config.LibraryRpio})
	assert.Equal(t, config.LibrarySim, lines.Backend)
	require.Len(t, opened, 1)
	assert.True(t, opened[0].closed, "clock line must be released")
}

func TestOpen_UsesConfiguredBackend(t *testing.T) {
	var pins []int
	withBackend(t, config.LibraryRpio, func(pin int) (p9813.Line, error) {
		pins = append(pins, pin)
		return &recordingLine{}, nil
	})
	lines := Open(config.HardwareConfig{ClockPin: 5, DataPin: 6, GPIOLibrary: config.LibraryRpio})
	assert.Equal(t, config.LibraryRpio, lines.Backend)
	assert.Equal(t, []int{5, 6}, pins)
}

func TestPinLine_Close(t *testing.T) {
	l, err := openSim(4)
	require.NoError(t, err)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "second close is a no-op")
	assert.ErrorIs(t, l.Set(true), ErrLineClosed)
}

func TestSimLines_DriveStrip(t *testing.T) {
	lines := Open(config.HardwareConfig{ClockPin: 23, DataPin: 24, GPIOLibrary: config.LibrarySim})
	strip := p9813.NewStrip(lines.Clock, lines.Data, 0)
	require.NoError(t, strip.SetWhite())
	assert.True(t, lines.Clock.(*pinLine).High(), "clock idles high after a frame")
	assert.False(t, lines.Data.(*pinLine).High(), "data ends on the last latch zero")
	require.NoError(t, strip.Close())
	assert.ErrorIs(t, lines.Clock.Set(true), ErrLineClosed)
}
