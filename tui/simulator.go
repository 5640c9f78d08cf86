// Package tui shows a simulated strip in the terminal and drives the
// controller from the keyboard.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/p9813leds/effect"
	"lautenbacher.net/p9813leds/led"
	"lautenbacher.net/p9813leds/logging"
	"lautenbacher.net/p9813leds/util"
)

const stripWidth = 40

// Controls are the controller operations reachable from the keyboard.
type Controls interface {
	OnEvent(name string)
	OnPrintProgress(percent int)
	ToggleLights()
	ActivateTorch()
	ApplyMode(m effect.Mode)
	Status() effect.Status
}

// keyEvents maps number keys to printer events.
var keyEvents = []struct {
	key   rune
	event string
}{
	{'1', "Connected"},
	{'2', "Disconnected"},
	{'3', "PrintPaused"},
	{'4', "PrintFailed"},
	{'5', "PrintDone"},
}

type Simulator struct {
	app      *tview.Application
	strip    *tview.TextView
	state    *tview.TextView
	history  *tview.TextView
	logs     *tview.TextView
	controls Controls
	status   *util.AtomicEvent[effect.Status]
	signals  chan<- os.Signal
	keys     chan rune
	progress int
}

func NewSimulator(controls Controls, status *util.AtomicEvent[effect.Status], signals chan<- os.Signal) *Simulator {
	return &Simulator{
		controls: controls,
		status:   status,
		signals:  signals,
		keys:     make(chan rune, 16),
	}
}

func helpText() string {
	var buf strings.Builder
	buf.WriteString("Hit ")
	for i, ke := range keyEvents {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "[blue]%c[-] %s", ke.key, ke.event)
	}
	buf.WriteString("\n[blue]+[-]/[blue]-[-] progress, [blue]l[-] lights, [blue]t[-] torch, [blue]o[-] off\n")
	buf.WriteString("Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config file")
	return buf.String()
}

func (s *Simulator) build() {
	layout := tview.NewFlex()
	layout.SetDirection(tview.FlexRow)

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" P9813 Simulation ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText(helpText())
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	s.strip = tview.NewTextView()
	s.strip.SetBorder(true).SetTitle(" Strip ")
	s.strip.SetDynamicColors(true)
	s.strip.SetBackgroundColor(tcell.ColorDarkSlateGray)

	s.state = tview.NewTextView()
	s.state.SetBorder(true).SetTitle(" State ")
	s.state.SetDynamicColors(true)

	s.history = tview.NewTextView()
	s.history.SetBorder(true).SetTitle(" History ")
	s.history.SetDynamicColors(true)

	s.logs = tview.NewTextView()
	s.logs.SetBorder(true).SetTitle(" Log ")
	s.logs.SetScrollable(true)

	middle := tview.NewFlex()
	middle.AddItem(s.state, 0, 1, false)
	middle.AddItem(s.history, 0, 2, false)

	layout.AddItem(intro, 5, 1, false)
	layout.AddItem(s.strip, 4, 1, false)
	layout.AddItem(middle, 0, 2, false)
	layout.AddItem(s.logs, 0, 1, false)

	s.app = tview.NewApplication()
	s.app.SetRoot(layout, true)
	s.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// controller calls log, which redraws; keep them off the UI goroutine
		select {
		case s.keys <- event.Rune():
		default:
		}
		return event
	})
	s.logs.SetChangedFunc(func() {
		s.logs.ScrollToEnd()
		s.app.Draw()
	})
}

func (s *Simulator) handleKey(key rune) {
	for _, ke := range keyEvents {
		if ke.key == key {
			s.controls.OnEvent(ke.event)
			return
		}
	}
	switch key {
	case '+', '-':
		if key == '+' {
			s.progress = min(s.progress+10, 90)
		} else {
			s.progress = max(s.progress-10, 0)
		}
		s.controls.OnPrintProgress(s.progress)
	case 'l', 'L':
		s.controls.ToggleLights()
	case 't', 'T':
		s.controls.ActivateTorch()
	case 'o', 'O':
		s.controls.ApplyMode(effect.ModeOff)
	case 'q', 'Q':
		s.stopApp()
		s.signals <- os.Interrupt
	case 'r', 'R':
		s.signals <- syscall.SIGHUP
	}
}

func (s *Simulator) stopApp() {
	if s.app != nil {
		s.app.Stop()
	}
}

// Run shows the UI until ctx is done. Logging is redirected to the log pane
// while it runs.
func (s *Simulator) Run(ctx context.Context) error {
	s.build()
	if err := logging.SetOutput(s.logs); err != nil {
		return err
	}
	defer func() {
		if err := logging.SetOutput(os.Stderr); err != nil {
			slog.Error("Failed to restore log output", "error", err)
		}
	}()

	s.update(s.controls.Status())
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case k := <-s.keys:
				s.handleKey(k)
			}
		}
	}()
	go func() {
		for {
			st, ok := s.status.Wait(ctx)
			if !ok {
				s.app.Stop()
				return
			}
			s.app.QueueUpdateDraw(func() { s.update(st) })
		}
	}()
	return s.app.Run()
}

func (s *Simulator) update(st effect.Status) {
	s.strip.SetText(renderStrip(st.Color, stripWidth))
	s.state.SetText(renderState(st))
	s.history.SetText(renderHistory(st.History))
}

func colorTag(c led.Color) string {
	return "[" + c.String() + "]"
}

func renderStrip(c led.Color, width int) string {
	if c.IsEmpty() {
		return " " + strings.Repeat("·", width)
	}
	return " " + colorTag(c) + strings.Repeat("█", width) + "[-]"
}

func onOff(b bool) string {
	if b {
		return "[green]on[-]"
	}
	return "[gray]off[-]"
}

func renderState(st effect.Status) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Lights:  %s\n", onOff(st.LightsOn))
	fmt.Fprintf(&buf, "Torch:   %s\n", onOff(st.TorchOn))
	fmt.Fprintf(&buf, "Mode:    %s", st.Mode)
	if st.Value != nil {
		fmt.Fprintf(&buf, " %d%%", *st.Value)
	}
	fmt.Fprintf(&buf, "\nColour:  %s\n", st.Color)
	if st.Heating {
		fmt.Fprintf(&buf, "Heating: %s\n", st.Heater)
	}
	return buf.String()
}

// renderHistory lists the most recent transition first.
func renderHistory(history []effect.Transition) string {
	var buf strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		marker := " "
		if t.Rendered {
			marker = colorTag(t.Color) + "■[-]"
		}
		fmt.Fprintf(&buf, "%s %s %s", t.Time.Format("15:04:05"), marker, t.Mode)
		if t.Value != nil {
			fmt.Fprintf(&buf, " %d%%", *t.Value)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
