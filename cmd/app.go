package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"lautenbacher.net/p9813leds/config"
	"lautenbacher.net/p9813leds/effect"
	"lautenbacher.net/p9813leds/events"
	"lautenbacher.net/p9813leds/gpio"
	"lautenbacher.net/p9813leds/ingest"
	"lautenbacher.net/p9813leds/logging"
	"lautenbacher.net/p9813leds/metrics"
	"lautenbacher.net/p9813leds/p9813"
	"lautenbacher.net/p9813leds/tui"
	"lautenbacher.net/p9813leds/util"
)

// App is the daemon: one controller, its strip and the inputs feeding it.
type App struct {
	cfile    string
	useTUI   bool
	ossignal chan os.Signal
	in       io.Reader
	out      io.Writer

	// replaceable in tests
	openLines func(config.HardwareConfig) gpio.Lines
	notify    func(state string)
	debounce  time.Duration

	mu      sync.Mutex
	conf    *config.Config
	bus     *events.Bus
	ctrl    *effect.Controller
	status  *util.AtomicEvent[effect.Status]
	watcher *config.Watcher
}

func NewApp(cfile string, ossignal chan os.Signal) *App {
	return &App{
		cfile:     cfile,
		ossignal:  ossignal,
		in:        os.Stdin,
		out:       os.Stdout,
		openLines: gpio.Open,
		notify:    sdNotify,
		debounce:  config.DefaultDebounce,
	}
}

func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		slog.Debug("sd_notify failed", "state", state, "error", err)
	}
}

func (a *App) newStrip(hw config.HardwareConfig) effect.Strip {
	lines := a.openLines(hw)
	slog.Info("Strip opened", "backend", lines.Backend, "clock", hw.ClockPin, "data", hw.DataPin)
	return p9813.NewStrip(lines.Clock, lines.Data, hw.BitDelay())
}

// initialise builds everything from the config file. Logging must already
// be set up.
func (a *App) initialise(conf *config.Config) {
	a.conf = conf
	a.bus = events.New()
	a.status = util.NewAtomicEvent[effect.Status]()
	a.ctrl = effect.New(
		a.newStrip(conf.Hardware),
		config.NewSettings(conf),
		effect.WithBus(a.bus),
		effect.WithStatusSink(a.status),
	)
	a.ctrl.Startup()

	a.watcher = config.NewWatcher(a.cfile, a.debounce)
	a.watcher.OnReload(a.reconfigure)
}

// reconfigure hands new settings to the controller; a changed hardware
// section reopens the strip.
func (a *App) reconfigure(conf *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var open func() effect.Strip
	if conf.Hardware != a.conf.Hardware {
		hw := conf.Hardware
		open = func() effect.Strip { return a.newStrip(hw) }
	}
	if err := a.ctrl.Reconfigure(config.NewSettings(conf), open); err != nil {
		slog.Warn("Error closing old strip", "error", err)
	}
	a.conf = conf
	slog.Info("Configuration reloaded", "file", a.cfile, "hardware_changed", open != nil)
}

func (a *App) startInputs(ctx context.Context) {
	server := ingest.New(a.ctrl, a.out)
	if path := a.conf.Input.Path; path != "" {
		go func() {
			if err := server.ServeFIFO(ctx, path); err != nil {
				slog.Error("Command fifo failed", "path", path, "error", err)
			}
		}()
	} else if !a.useTUI {
		go func() {
			if err := server.Serve(ctx, a.in); err != nil {
				slog.Error("Command input failed", "error", err)
			}
		}()
	}
}

func (a *App) startMetrics(ctx context.Context) {
	path := a.conf.Metrics.TextfilePath
	if path == "" {
		return
	}
	collector := metrics.New()
	unsubscribe := collector.Subscribe(a.bus)
	interval := time.Duration(a.conf.Metrics.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		defer unsubscribe()
		collector.Run(ctx, path, interval)
	}()
}

func (a *App) startTUI(ctx context.Context) {
	sim := tui.NewSimulator(a.ctrl, a.status, a.ossignal)
	go func() {
		if err := sim.Run(ctx); err != nil {
			slog.Error("Error running TUI", "error", err)
		}
	}()
}

// Run serves until SIGINT/SIGTERM or ctx ends. SIGHUP reloads the config
// file.
func (a *App) Run(ctx context.Context) error {
	conf, err := config.ReadConfig(a.cfile)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Options{
		Buffer:  a.useTUI,
		Level:   conf.Logging.Level,
		Format:  conf.Logging.Format,
		File:    conf.Logging.File,
		Journal: !a.useTUI,
	}); err != nil {
		return err
	}
	defer logging.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.initialise(conf)
	a.startMetrics(ctx)
	a.startInputs(ctx)
	if a.useTUI {
		a.startTUI(ctx)
	}
	if err := a.watcher.Start(); err != nil {
		slog.Warn("Config file is not watched, use SIGHUP to reload", "file", a.cfile, "error", err)
	}

	a.notify(daemon.SdNotifyReady)
	slog.Info("Started", "config", a.cfile)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case sig := <-a.ossignal:
			switch sig {
			case syscall.SIGHUP:
				slog.Info("Reloading config file", "file", a.cfile)
				a.watcher.Reload()
			default:
				slog.Info("Shutting down", "signal", sig)
				running = false
			}
		}
	}

	a.notify(daemon.SdNotifyStopping)
	cancel()
	return errors.Join(a.watcher.Stop(), a.ctrl.Shutdown())
}
