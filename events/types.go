package events

import (
	"time"

	"lautenbacher.net/p9813leds/led"
)

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeTimerFired
	TypeTelemetryError
	TypeTransmitError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published every time the controller renders a colour
// or changes the lights/torch flags.
type StateChangedEvent struct {
	Mode      string    `json:"mode"`
	Value     *int      `json:"value,omitempty"`
	Color     led.Color `json:"color"`
	Rendered  bool      `json:"rendered"`
	LightsOn  bool      `json:"lights_on"`
	TorchOn   bool      `json:"torch_on"`
	Timestamp time.Time `json:"timestamp"`
}

func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// TimerFiredEvent is published when a deferred transition runs.
type TimerFiredEvent struct {
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TimerFiredEvent) Type() uint32 { return TypeTimerFired }

// TelemetryErrorEvent reports a heater that vanished from the readings
// while it was being tracked.
type TelemetryErrorEvent struct {
	Heater    string    `json:"heater"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TelemetryErrorEvent) Type() uint32 { return TypeTelemetryError }

// TransmitErrorEvent reports a failed write to the strip.
type TransmitErrorEvent struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TransmitErrorEvent) Type() uint32 { return TypeTransmitError }
