package effect

import (
	"time"

	"lautenbacher.net/p9813leds/events"
	"lautenbacher.net/p9813leds/led"
)

const historySize = 32

// Transition is one entry of the change history.
type Transition struct {
	Time     time.Time `json:"time"`
	Mode     Mode      `json:"mode"`
	Value    *int      `json:"value,omitempty"`
	Color    led.Color `json:"color"`
	Rendered bool      `json:"rendered"`
}

// Status answers the status query. LightsOn and TorchOn are what the UI
// shows; the rest is diagnostics.
type Status struct {
	LightsOn bool         `json:"lights_on"`
	TorchOn  bool         `json:"torch_on"`
	Mode     Mode         `json:"mode"`
	Value    *int         `json:"value,omitempty"`
	Color    led.Color    `json:"color"`
	Heating  bool         `json:"heating"`
	Heater   string       `json:"heater,omitempty"`
	History  []Transition `json:"history"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	s := Status{
		LightsOn: c.state.LightsOn,
		TorchOn:  c.state.TorchOn,
		Mode:     c.state.Current,
		Color:    c.color,
		Heating:  c.state.Heating,
		Heater:   c.state.Heater,
		History:  make([]Transition, c.history.Len()),
	}
	if c.state.Value != nil {
		v := *c.state.Value
		s.Value = &v
	}
	for i := range s.History {
		s.History[i] = c.history.At(i)
	}
	return s
}

func (c *Controller) recordLocked(mode Mode, value *int, color led.Color, rendered bool) {
	t := Transition{
		Time:     c.now(),
		Mode:     mode,
		Color:    color,
		Rendered: rendered,
	}
	if value != nil {
		v := *value
		t.Value = &v
	}
	c.history.PushBack(t)
	for c.history.Len() > historySize {
		c.history.PopFront()
	}

	c.bus.Publish(events.StateChangedEvent{
		Mode:      string(mode),
		Value:     t.Value,
		Color:     color,
		Rendered:  rendered,
		LightsOn:  c.state.LightsOn,
		TorchOn:   c.state.TorchOn,
		Timestamp: t.Time,
	})
	if c.sink != nil {
		c.sink.Send(c.statusLocked())
	}
}
