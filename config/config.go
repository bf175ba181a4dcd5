/*Package config loads the settings of a capture session.

Values are layered: the defaults from Default, then the YAML file (if it
exists), then environment variables prefixed with HSICAP_.  A double
underscore in a variable name separates levels, so HSICAP_THORLABS__EXPOSURE_MS
sets thorlabs.exposure_ms.
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/nasa-jpl/hsicap/archive"
	"github.com/nasa-jpl/hsicap/camera/cubert"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/util"
)

// FileName is the default config file name
const FileName = "hsicap.yml"

// EnvPrefix prefixes environment overrides
const EnvPrefix = "HSICAP_"

// Sim as a camera address uses a simulated camera
const Sim = "sim"

// Camera configures one channel
type Camera struct {
	// Addr is the URL of the camera server, or "sim"
	Addr string `koanf:"addr" yaml:"addr"`

	// Name is the camera name used in file names
	Name string `koanf:"name" yaml:"name"`

	// Dir is the output folder, relative to OutputRoot unless absolute
	Dir string `koanf:"dir" yaml:"dir"`

	ExposureMS   float64    `koanf:"exposure_ms" yaml:"exposure_ms"`
	SNRThreshold float64    `koanf:"snr_threshold" yaml:"snr_threshold"`
	Crop         frame.Rect `koanf:"crop" yaml:"crop"`

	// ResetOnError reinitializes the camera after a device error
	ResetOnError bool `koanf:"reset_on_error" yaml:"reset_on_error"`

	// DistanceMM is the processing distance, for cameras that have one
	DistanceMM float64 `koanf:"distance_mm" yaml:"distance_mm"`

	// SimShape is the raw frame shape of a simulated camera
	SimShape []int `koanf:"sim_shape" yaml:"sim_shape"`
}

// Exposure is ExposureMS as a duration
func (c Camera) Exposure() time.Duration {
	return util.MsToDuration(c.ExposureMS)
}

// Display configures the reference image display
type Display struct {
	Dir        string `koanf:"dir" yaml:"dir"`
	Width      int    `koanf:"width" yaml:"width"`
	Height     int    `koanf:"height" yaml:"height"`
	Monitor    int    `koanf:"monitor" yaml:"monitor"`
	Fullscreen bool   `koanf:"fullscreen" yaml:"fullscreen"`

	// Headless presents nothing and only logs the image names
	Headless bool `koanf:"headless" yaml:"headless"`

	IntervalMS float64 `koanf:"interval_ms" yaml:"interval_ms"`
	WarmupMS   float64 `koanf:"warmup_ms" yaml:"warmup_ms"`
	SettleMS   float64 `koanf:"settle_ms" yaml:"settle_ms"`
}

// Dark configures dark frame calibration
type Dark struct {
	Dir    string `koanf:"dir" yaml:"dir"`
	Frames int    `koanf:"frames" yaml:"frames"`

	// MaxFailures caps failed captures over a calibration run; zero is
	// three times Frames
	MaxFailures int     `koanf:"max_failures" yaml:"max_failures"`
	DelayMS     float64 `koanf:"delay_ms" yaml:"delay_ms"`
}

// Config is the whole configuration
type Config struct {
	OutputRoot string `koanf:"output_root" yaml:"output_root"`

	// Format is tiff or fits
	Format string `koanf:"format" yaml:"format"`

	Thorlabs Camera `koanf:"thorlabs" yaml:"thorlabs"`
	Cubert   Camera `koanf:"cubert" yaml:"cubert"`

	MaxAttempts  int     `koanf:"max_attempts" yaml:"max_attempts"`
	RetryDelayMS float64 `koanf:"retry_delay_ms" yaml:"retry_delay_ms"`

	// CycleTimeoutMS bounds one cycle; zero relies on the retry bounds
	CycleTimeoutMS float64 `koanf:"cycle_timeout_ms" yaml:"cycle_timeout_ms"`

	// StartIndex is the first index; negative resumes after existing files
	StartIndex int `koanf:"start_index" yaml:"start_index"`

	Display Display `koanf:"display" yaml:"display"`
	Dark    Dark    `koanf:"dark" yaml:"dark"`

	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// StatusAddr serves /metrics and /status when set, e.g. ":9100"
	StatusAddr string `koanf:"status_addr" yaml:"status_addr"`

	// CatalogPath is a JSON lines catalog, relative to OutputRoot
	CatalogPath string `koanf:"catalog_path" yaml:"catalog_path"`

	// DatabaseURL selects a Postgres catalog instead of the file
	DatabaseURL string `koanf:"database_url" yaml:"database_url"`

	Archive archive.Config `koanf:"archive" yaml:"archive"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		OutputRoot: "dataset",
		Format:     string(imgrec.TIFF),
		Thorlabs: Camera{
			Addr:         Sim,
			Name:         "thorlabs",
			Dir:          "thorlabs",
			ExposureMS:   10,
			SNRThreshold: 0.05,
			SimShape:     []int{64, 64},
		},
		Cubert: Camera{
			Addr:         Sim,
			Name:         "cubert",
			Dir:          "cubert",
			ExposureMS:   100,
			SNRThreshold: 0.1,
			DistanceMM:   cubert.DefaultDistance,
			SimShape:     []int{32, 32, 106},
		},
		MaxAttempts:  15,
		RetryDelayMS: 100,
		StartIndex:   -1,
		Display: Display{
			Dir:      "images",
			Width:    1920,
			Height:   1080,
			Monitor:  1,
			WarmupMS: 2000,
			SettleMS: 500,
		},
		Dark: Dark{
			Dir:     "darks",
			Frames:  100,
			DelayMS: 100,
		},
		LogLevel:    "info",
		CatalogPath: "catalog.jsonl",
	}
}

// Load layers path and the environment over the defaults.  A missing file
// is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("error loading config: %w", err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, err
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the values a capture session cannot run without
func (c Config) Validate() error {
	var errs []error
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.OutputRoot == "" {
		errs = append(errs, errors.New("output_root is empty"))
	}
	if _, err := imgrec.ParseFormat(c.Format); err != nil {
		errs = append(errs, err)
	}
	for _, cam := range []Camera{c.Thorlabs, c.Cubert} {
		if cam.Name == "" || cam.Dir == "" || cam.Addr == "" {
			errs = append(errs, fmt.Errorf("camera %q needs a name, dir and addr", cam.Name))
		}
		if cam.ExposureMS <= 0 {
			errs = append(errs, fmt.Errorf("%s: exposure_ms must be positive, got %v", cam.Name, cam.ExposureMS))
		}
		if cam.SNRThreshold < 0 {
			errs = append(errs, fmt.Errorf("%s: snr_threshold must not be negative", cam.Name))
		}
	}
	if c.Thorlabs.Dir == c.Cubert.Dir && c.Thorlabs.Name == c.Cubert.Name {
		errs = append(errs, errors.New("thorlabs and cubert write the same files"))
	}
	if c.Dark.Frames < 1 {
		errs = append(errs, fmt.Errorf("dark.frames must be at least 1, got %d", c.Dark.Frames))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// RetryDelay is RetryDelayMS as a duration
func (c Config) RetryDelay() time.Duration {
	return util.MsToDuration(c.RetryDelayMS)
}

// CycleTimeout is CycleTimeoutMS as a duration
func (c Config) CycleTimeout() time.Duration {
	return util.MsToDuration(c.CycleTimeoutMS)
}

// Under joins p to OutputRoot unless p is absolute
func (c Config) Under(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.OutputRoot, p)
}
