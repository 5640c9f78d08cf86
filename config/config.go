package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

// GPIO libraries understood by the gpio package.
const (
	LibraryPeriph = "periph.io"
	LibraryRpio   = "rpio"
	LibrarySim    = "sim"
)

// maxPin is the highest BCM GPIO number on the 40 pin header.
const maxPin = 27

// EffectNames lists the modes that carry an enabled flag and a colour.
var EffectNames = []string{
	"idle",
	"failed",
	"success",
	"paused",
	"printing",
	"progress_print",
	"progress_heatup",
}

type Config struct {
	Hardware HardwareConfig          `yaml:"Hardware" toml:"Hardware"`
	Effects  map[string]EffectConfig `yaml:"Effects" toml:"Effects"`
	Timers   TimersConfig            `yaml:"Timers" toml:"Timers"`
	Features FeaturesConfig          `yaml:"Features" toml:"Features"`
	Logging  LoggingConfig           `yaml:"Logging" toml:"Logging"`
	Metrics  MetricsConfig           `yaml:"Metrics" toml:"Metrics"`
	Input    InputConfig             `yaml:"Input" toml:"Input"`
}

// HardwareConfig can be overridden from the environment.
type HardwareConfig struct {
	ClockPin       int    `yaml:"ClockPin" toml:"ClockPin" env:"P9813_CLOCK_PIN"`
	DataPin        int    `yaml:"DataPin" toml:"DataPin" env:"P9813_DATA_PIN"`
	GPIOLibrary    string `yaml:"GPIOLibrary" toml:"GPIOLibrary" env:"P9813_GPIO_LIBRARY"`
	BitDelayMicros int    `yaml:"BitDelayMicros" toml:"BitDelayMicros" env:"P9813_BIT_DELAY_US"`
}

func (h HardwareConfig) BitDelay() time.Duration {
	return time.Duration(h.BitDelayMicros) * time.Microsecond
}

type EffectConfig struct {
	Enabled bool   `yaml:"Enabled" toml:"Enabled"`
	Color   string `yaml:"Color" toml:"Color"`
}

type TimersConfig struct {
	TorchSeconds             int `yaml:"TorchSeconds" toml:"TorchSeconds"`
	IdleTimeoutSeconds       int `yaml:"IdleTimeoutSeconds" toml:"IdleTimeoutSeconds"`
	SuccessReturnIdleSeconds int `yaml:"SuccessReturnIdleSeconds" toml:"SuccessReturnIdleSeconds"`
}

type FeaturesConfig struct {
	PrintingSteadyColor bool `yaml:"PrintingSteadyColor" toml:"PrintingSteadyColor"`
	HeatupToolEnabled   bool `yaml:"HeatupToolEnabled" toml:"HeatupToolEnabled"`
	HeatupBedEnabled    bool `yaml:"HeatupBedEnabled" toml:"HeatupBedEnabled"`
	AtCommandReaction   bool `yaml:"AtCommandReaction" toml:"AtCommandReaction"`
	InterceptM150       bool `yaml:"InterceptM150" toml:"InterceptM150"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level" toml:"Level"`
	Format string `yaml:"Format" toml:"Format"`
	File   string `yaml:"File" toml:"File"`
}

// MetricsConfig controls the node-exporter textfile. An empty path disables
// the export.
type MetricsConfig struct {
	TextfilePath    string `yaml:"TextfilePath" toml:"TextfilePath"`
	IntervalSeconds int    `yaml:"IntervalSeconds" toml:"IntervalSeconds"`
}

// InputConfig names the FIFO the host application writes to. Empty means
// stdin.
type InputConfig struct {
	Path string `yaml:"Path" toml:"Path"`
}

// effectsFile sees which effect fields the file sets, so an entry that
// only names a colour keeps the default Enabled flag.
type effectsFile struct {
	Effects map[string]struct {
		Enabled *bool   `yaml:"Enabled" toml:"Enabled"`
		Color   *string `yaml:"Color" toml:"Color"`
	} `yaml:"Effects" toml:"Effects"`
}

func (f effectsFile) mergeOver(defaults map[string]EffectConfig) map[string]EffectConfig {
	merged := defaults
	for name, e := range f.Effects {
		ec := merged[name]
		if e.Enabled != nil {
			ec.Enabled = *e.Enabled
		}
		if e.Color != nil {
			ec.Color = *e.Color
		}
		merged[name] = ec
	}
	return merged
}

// Default returns the configuration used for everything the file leaves
// out.
func Default() *Config {
	return &Config{
		Hardware: HardwareConfig{
			ClockPin:    23,
			DataPin:     24,
			GPIOLibrary: LibraryPeriph,
		},
		Effects: map[string]EffectConfig{
			"idle":            {Enabled: true, Color: "ffffff"},
			"failed":          {Enabled: true, Color: "ff0000"},
			"success":         {Enabled: true, Color: "00ff00"},
			"paused":          {Enabled: true, Color: "ffa500"},
			"printing":        {Enabled: true, Color: "ffffff"},
			"progress_print":  {Enabled: true, Color: "0000ff"},
			"progress_heatup": {Enabled: true, Color: "ff4500"},
		},
		Timers: TimersConfig{
			TorchSeconds:             15,
			IdleTimeoutSeconds:       600,
			SuccessReturnIdleSeconds: 300,
		},
		Features: FeaturesConfig{
			HeatupToolEnabled: true,
			HeatupBedEnabled:  true,
			AtCommandReaction: true,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Metrics: MetricsConfig{
			IntervalSeconds: 15,
		},
	}
}

// ReadConfig loads cfile on top of Default, applies the environment
// overrides of the hardware section and validates the result. Files ending
// in .toml are parsed as TOML, everything else as YAML.
func ReadConfig(cfile string) (*Config, error) {
	data, err := os.ReadFile(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't read config file %s: %w", cfile, err)
	}

	conf := Default()
	var effects effectsFile
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(cfile), ".toml") {
		unmarshal = toml.Unmarshal
	}
	if err := unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := unmarshal(data, &effects); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Effects = effects.mergeOver(Default().Effects)

	if err := env.Parse(&conf.Hardware); err != nil {
		return nil, fmt.Errorf("can't apply environment overrides: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate reports every problem found. Colours are not checked here, a
// malformed colour renders as off.
func (c *Config) Validate() error {
	var errs []error

	for name, pin := range map[string]int{"ClockPin": c.Hardware.ClockPin, "DataPin": c.Hardware.DataPin} {
		if pin < 0 || pin > maxPin {
			errs = append(errs, fmt.Errorf("Hardware.%s %d must be between 0 and %d", name, pin, maxPin))
		}
	}
	if c.Hardware.ClockPin == c.Hardware.DataPin {
		errs = append(errs, fmt.Errorf("Hardware.ClockPin and Hardware.DataPin must differ, both are %d", c.Hardware.ClockPin))
	}
	switch c.Hardware.GPIOLibrary {
	case LibraryPeriph, LibraryRpio, LibrarySim:
	default:
		errs = append(errs, fmt.Errorf("Hardware.GPIOLibrary %q must be one of %s, %s, %s",
			c.Hardware.GPIOLibrary, LibraryPeriph, LibraryRpio, LibrarySim))
	}
	if c.Hardware.BitDelayMicros < 0 {
		errs = append(errs, errors.New("Hardware.BitDelayMicros must not be negative"))
	}

	for name, secs := range map[string]int{
		"TorchSeconds":             c.Timers.TorchSeconds,
		"IdleTimeoutSeconds":       c.Timers.IdleTimeoutSeconds,
		"SuccessReturnIdleSeconds": c.Timers.SuccessReturnIdleSeconds,
		"Metrics.IntervalSeconds":  c.Metrics.IntervalSeconds,
	} {
		if secs < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, secs))
		}
	}

	for name := range c.Effects {
		if !slices.Contains(EffectNames, name) {
			errs = append(errs, fmt.Errorf("unknown effect %q, known effects are %s", name, strings.Join(EffectNames, ", ")))
		}
	}

	return errors.Join(errs...)
}
