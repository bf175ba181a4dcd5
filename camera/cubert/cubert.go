/*Package cubert locates the data directories the Cubert (CUVIS) SDK needs
before a hyperspectral camera can be opened.

The SDK installer exports CUVIS on Windows, pointing at its bin folder, and
CUVIS_DATA on Linux, pointing at its data folder.  Calibration lives in the
factory folder next to bin, and user settings in the SDK's example data.
*/
package cubert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// ShortName is the camera name used in master dark file names
const ShortName = "cb"

// DefaultDistance is the scene distance the dataset was taken at, in mm
const DefaultDistance = 6000

// ErrNoSDK is returned when the SDK environment variable is not set
var ErrNoSDK = errors.New("cubert: SDK environment variable not set")

type sdkEnv struct {
	Lib  string `env:"CUVIS"`
	Data string `env:"CUVIS_DATA"`
}

// Paths are the SDK directories
type Paths struct {
	// Lib is the directory named by the environment
	Lib string

	// Data holds the example data and user settings
	Data string

	// Factory holds the camera calibration
	Factory string

	// Settings is the user settings directory
	Settings string
}

// Resolve derives the SDK directories for goos from environ, a map of
// environment variables
func Resolve(goos string, environ map[string]string) (Paths, error) {
	var e sdkEnv
	if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
		return Paths{}, err
	}
	var p Paths
	if goos == "windows" {
		if e.Lib == "" {
			return p, fmt.Errorf("%w: CUVIS", ErrNoSDK)
		}
		p.Lib = e.Lib
		p.Data = filepath.Clean(filepath.Join(e.Lib, "..", "sdk", "sample_data", "set_examples"))
	} else {
		if e.Data == "" {
			return p, fmt.Errorf("%w: CUVIS_DATA", ErrNoSDK)
		}
		p.Lib = e.Data
		p.Data = filepath.Clean(filepath.Join(e.Data, "sample_data", "set_examples"))
	}
	p.Factory = filepath.Clean(filepath.Join(p.Lib, "..", "factory"))
	p.Settings = filepath.Join(p.Data, "settings")
	return p, nil
}

// FromEnv resolves the paths from the process environment
func FromEnv() (Paths, error) {
	return Resolve(runtime.GOOS, env.ToMap(os.Environ()))
}

// Check verifies the factory and settings directories exist
func (p Paths) Check() error {
	for _, dir := range []string{p.Factory, p.Settings} {
		st, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("cubert: %w", err)
		}
		if !st.IsDir() {
			return fmt.Errorf("cubert: %s is not a directory", dir)
		}
	}
	return nil
}
