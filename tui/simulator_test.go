package tui

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lautenbacher.net/p9813leds/effect"
	"lautenbacher.net/p9813leds/led"
)

type fakeControls struct {
	events   []string
	progress []int
	modes    []effect.Mode
	toggles  int
	torches  int
}

func (f *fakeControls) OnEvent(name string)         { f.events = append(f.events, name) }
func (f *fakeControls) OnPrintProgress(percent int) { f.progress = append(f.progress, percent) }
func (f *fakeControls) ToggleLights()               { f.toggles++ }
func (f *fakeControls) ActivateTorch()              { f.torches++ }
func (f *fakeControls) ApplyMode(m effect.Mode)     { f.modes = append(f.modes, m) }
func (f *fakeControls) Status() effect.Status       { return effect.Status{} }

func TestHandleKey(t *testing.T) {
	fc := &fakeControls{}
	signals := make(chan os.Signal, 2)
	s := NewSimulator(fc, nil, signals)

	for _, k := range "15+++-ltO" {
		s.handleKey(k)
	}
	assert.Equal(t, []string{"Connected", "PrintDone"}, fc.events)
	assert.Equal(t, []int{10, 20, 30, 20}, fc.progress)
	assert.Equal(t, 1, fc.toggles)
	assert.Equal(t, 1, fc.torches)
	assert.Equal(t, []effect.Mode{effect.ModeOff}, fc.modes)

	s.handleKey('r')
	s.handleKey('q')
	assert.Equal(t, syscall.SIGHUP, <-signals)
	assert.Equal(t, os.Interrupt, <-signals)
}

func TestHandleKey_ProgressStaysBelowDone(t *testing.T) {
	fc := &fakeControls{}
	s := NewSimulator(fc, nil, nil)
	for range 12 {
		s.handleKey('+')
	}
	assert.Equal(t, 90, fc.progress[len(fc.progress)-1])
}

func TestRenderStrip(t *testing.T) {
	assert.Equal(t, " ····", renderStrip(led.Off, 4))
	assert.Equal(t, " [#ff4500]███[-]", renderStrip(led.Color{Red: 0xff, Green: 0x45}, 3))
}

func TestRenderState(t *testing.T) {
	v := 40
	out := renderState(effect.Status{
		LightsOn: true,
		Mode:     effect.ModeProgressHeatup,
		Value:    &v,
		Color:    led.Red,
		Heating:  true,
		Heater:   "T0",
	})
	assert.Contains(t, out, "Lights:  [green]on[-]")
	assert.Contains(t, out, "Torch:   [gray]off[-]")
	assert.Contains(t, out, "Mode:    progress_heatup 40%")
	assert.Contains(t, out, "Colour:  #ff0000")
	assert.Contains(t, out, "Heating: T0")
}

func TestRenderHistory_NewestFirst(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	v := 5
	out := renderHistory([]effect.Transition{
		{Time: at, Mode: effect.ModeIdle, Color: led.White, Rendered: true},
		{Time: at.Add(time.Second), Mode: effect.ModeProgressPrint, Value: &v},
	})
	assert.Equal(t, "12:00:01   progress_print 5%\n12:00:00 [#ffffff]■[-] idle\n", out)
}
