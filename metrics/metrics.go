// Package metrics keeps Prometheus metrics about the strip and writes them
// to a node-exporter textfile.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lautenbacher.net/p9813leds/events"
)

const namespace = "p9813leds"

// Collector is fed from the event bus.
type Collector struct {
	registry *prometheus.Registry

	stateChanges    *prometheus.CounterVec
	framesRendered  prometheus.Counter
	timersFired     *prometheus.CounterVec
	telemetryErrors *prometheus.CounterVec
	transmitErrors  prometheus.Counter
	lightsOn        prometheus.Gauge
	torchOn         prometheus.Gauge
	mode            *prometheus.GaugeVec
	progress        prometheus.Gauge
	color           *prometheus.GaugeVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		stateChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Applied modes, rendered or not",
		}, []string{"mode"}),
		framesRendered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Colours transmitted to the strip",
		}),
		timersFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_fired_total",
			Help:      "Deferred transitions that ran",
		}, []string{"role"}),
		telemetryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_errors_total",
			Help:      "Tracked heaters missing from temperature reports",
		}, []string{"heater"}),
		transmitErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transmit_errors_total",
			Help:      "Failed writes to the GPIO lines",
		}),
		lightsOn: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lights_on",
			Help:      "1 if the lights are on",
		}),
		torchOn: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "torch_on",
			Help:      "1 while the torch is active",
		}),
		mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the mode applied last",
		}, []string{"mode"}),
		progress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_percent",
			Help:      "Value of the last progress mode",
		}),
		color: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "color",
			Help:      "Channel values of the colour on the strip",
		}, []string{"channel"}),
	}
}

// Registry is exposed for tests and custom gatherers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Subscribe feeds the collector from bus until the returned function is
// called.
func (c *Collector) Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(c.observeState),
		bus.Subscribe(func(e events.TimerFiredEvent) {
			c.timersFired.WithLabelValues(e.Role).Inc()
		}),
		bus.Subscribe(func(e events.TelemetryErrorEvent) {
			c.telemetryErrors.WithLabelValues(e.Heater).Inc()
		}),
		bus.Subscribe(func(events.TransmitErrorEvent) {
			c.transmitErrors.Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (c *Collector) observeState(e events.StateChangedEvent) {
	c.stateChanges.WithLabelValues(e.Mode).Inc()
	c.lightsOn.Set(boolToFloat(e.LightsOn))
	c.torchOn.Set(boolToFloat(e.TorchOn))
	if e.Mode != "torch" {
		c.mode.Reset()
		c.mode.WithLabelValues(e.Mode).Set(1)
	}
	if e.Value != nil {
		c.progress.Set(float64(*e.Value))
	}
	if e.Rendered {
		c.framesRendered.Inc()
		c.color.WithLabelValues("red").Set(float64(e.Color.Red))
		c.color.WithLabelValues("green").Set(float64(e.Color.Green))
		c.color.WithLabelValues("blue").Set(float64(e.Color.Blue))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// WriteTextfile writes all metrics atomically to path.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Run writes the textfile every interval and once more when ctx is done.
func (c *Collector) Run(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.WriteTextfile(path); err != nil {
				slog.Warn("Failed to write metrics textfile", "path", path, "error", err)
			}
			return
		case <-ticker.C:
			if err := c.WriteTextfile(path); err != nil {
				slog.Warn("Failed to write metrics textfile", "path", path, "error", err)
			}
		}
	}
}
