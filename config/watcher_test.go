package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string) (*Watcher, chan *Config) {
	t.Helper()
	received := make(chan *Config, 10)
	w := NewWatcher(path, 50*time.Millisecond)
	w.OnReload(func(c *Config) { received <- c })
	require.NoError(t, w.Start())
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })
	// let the watcher settle
	time.Sleep(100 * time.Millisecond)
	return w, received
}

func TestWatcher_Reload(t *testing.T) {
	configFile := createConfigFile(t, "config.yml", validYAML)
	_, received := startWatcher(t, configFile)

	updated := strings.Replace(validYAML, "TorchSeconds: 30", "TorchSeconds: 42", 1)
	require.NoError(t, os.WriteFile(configFile, []byte(updated), 0o644))

	select {
	case conf := <-received:
		assert.Equal(t, 42, conf.Timers.TorchSeconds)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestWatcher_Debounce(t *testing.T) {
	configFile := createConfigFile(t, "config.yml", validYAML)
	_, received := startWatcher(t, configFile)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(configFile, []byte(validYAML), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
	select {
	case <-received:
		t.Fatal("rapid writes should collapse into one reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_InvalidFileSkipped(t *testing.T) {
	configFile := createConfigFile(t, "config.yml", validYAML)
	_, received := startWatcher(t, configFile)

	invalid := strings.Replace(validYAML, "ClockPin: 17", "ClockPin: 99", 1)
	require.NoError(t, os.WriteFile(configFile, []byte(invalid), 0o644))

	select {
	case <-received:
		t.Fatal("invalid config must not reach the handlers")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_ReloadDirect(t *testing.T) {
	configFile := createConfigFile(t, "config.yml", validYAML)
	w := NewWatcher(configFile, DefaultDebounce)
	var got *Config
	w.OnReload(func(c *Config) { got = c })

	assert.True(t, w.Reload())
	require.NotNil(t, got)
	assert.Equal(t, 30, got.Timers.TorchSeconds)

	require.NoError(t, os.WriteFile(configFile, []byte("Hardware: ["), 0o644))
	assert.False(t, w.Reload())
	assert.NoError(t, w.Stop(), "stopping a watcher that never started")
}
