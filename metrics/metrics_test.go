package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/p9813leds/events"
	"lautenbacher.net/p9813leds/led"
)

func TestObserveState(t *testing.T) {
	c := New()
	value := 42
	c.observeState(events.StateChangedEvent{Mode: "idle", Color: led.Color{Red: 1, Green: 2, Blue: 3}, Rendered: true, LightsOn: true})
	c.observeState(events.StateChangedEvent{Mode: "progress_print", Value: &value, Color: led.Blue, Rendered: true, LightsOn: true})
	c.observeState(events.StateChangedEvent{Mode: "failed", LightsOn: true, TorchOn: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.stateChanges.WithLabelValues("idle")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesRendered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lightsOn))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.torchOn))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.progress))
	assert.Equal(t, 255.0, testutil.ToFloat64(c.color.WithLabelValues("blue")), "unrendered changes keep the last colour")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.mode.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.mode), "only the current mode is exported")
}

func TestSubscribe(t *testing.T) {
	bus := events.New()
	c := New()
	unsub := c.Subscribe(bus)
	defer unsub()

	bus.Publish(events.TimerFiredEvent{Role: "auto_off"})
	bus.Publish(events.TelemetryErrorEvent{Heater: "T0"})
	bus.Publish(events.TransmitErrorEvent{Error: "stuck"})
	bus.Publish(events.StateChangedEvent{Mode: "off", Rendered: true})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(c.timersFired.WithLabelValues("auto_off")) == 1 &&
			testutil.ToFloat64(c.telemetryErrors.WithLabelValues("T0")) == 1 &&
			testutil.ToFloat64(c.transmitErrors) == 1 &&
			testutil.ToFloat64(c.framesRendered) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.observeState(events.StateChangedEvent{Mode: "on", Color: led.White, Rendered: true, LightsOn: true})

	path := filepath.Join(t.TempDir(), "p9813leds.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "p9813leds_lights_on 1")
	assert.Contains(t, text, `p9813leds_mode{mode="on"} 1`)
	assert.Contains(t, text, `p9813leds_color{channel="red"} 255`)
}

func TestRun_WritesOnShutdown(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "p9813leds.prom")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, path, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "p9813leds_frames_rendered_total 0"))
}
