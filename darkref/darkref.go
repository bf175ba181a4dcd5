/*Package darkref builds, stores and loads master dark frames.

A master dark is the elementwise average of N frames captured with the lens
capped, for one camera at one exposure time.  It is subtracted from every
science frame taken at that exposure.  Masters are stored as NumPy .npy
files named masterdark_<camera>_<exposure>ms.npy so the analysis notebooks
can load them directly.
*/
package darkref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
)

// ErrTooManyFailures is returned when a calibration run hits its failure cap
var ErrTooManyFailures = errors.New("darkref: too many failed dark captures")

// FileName is the conventional master dark file name
func FileName(cam string, exposure time.Duration) string {
	return fmt.Sprintf("masterdark_%s_%dms.npy", cam, exposure.Milliseconds())
}

// Master is an averaged dark frame and the settings it was taken at
type Master struct {
	// Camera is the short camera name used in the file name
	Camera string

	// Exposure is the exposure time of every averaged frame
	Exposure time.Duration

	// Distance is the processing distance in mm, for cameras that have one
	Distance float64

	// Frames is the number of frames averaged
	Frames int

	// Frame is the average
	Frame *frame.Frame
}

// Save writes the master into dir under FileName and returns the path
func (m *Master) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", err
	}
	fn := filepath.Join(dir, FileName(m.Camera, m.Exposure))
	fid, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	err = WriteNPY(fid, m.Frame)
	if cerr := fid.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", fn, err)
	}
	return fn, nil
}

// Load reads a .npy master dark
func Load(path string) (*frame.Frame, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	f, err := ReadNPY(fid)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return f, nil
}

// Lookup loads the master for cam at exposure from dir
func Lookup(dir, cam string, exposure time.Duration) (*frame.Frame, error) {
	return Load(filepath.Join(dir, FileName(cam, exposure)))
}

// AverageTIFFs averages every .tif/.tiff file in dir.  It returns the
// average and the number of files used.
func AverageTIFFs(dir string) (*frame.Frame, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".tif" || ext == ".tiff") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, 0, fmt.Errorf("darkref: no .tif files in %s", dir)
	}
	sort.Strings(names)
	var acc frame.Accumulator
	for _, name := range names {
		f, err := imgrec.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, 0, err
		}
		if err := acc.Add(f); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", name, err)
		}
	}
	return acc.Mean(), acc.N(), nil
}

// Calibrator captures and averages dark frames from one camera
type Calibrator struct {
	// Camera is the device to capture from.  It must already be set up.
	Camera camera.Camera

	// Name is the short camera name for the master, e.g. "tl" or "cb"
	Name string

	// Frames is the number of dark frames to average
	Frames int

	// MaxFailures caps the failed captures over the whole run.  Zero means
	// three times Frames.
	MaxFailures int

	// Delay is the pause after every capture attempt
	Delay time.Duration

	// Distance is recorded in the master
	Distance float64

	// Logger receives progress; slog.Default() if nil
	Logger *slog.Logger
}

// Calibrate captures Frames good frames, retrying failed captures in place,
// and returns their average.  The run aborts with ErrTooManyFailures once
// MaxFailures captures have failed.
func (c *Calibrator) Calibrate(ctx context.Context) (*Master, error) {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	if c.Frames < 1 {
		return nil, fmt.Errorf("darkref: need at least one frame, have %d", c.Frames)
	}
	maxFail := c.MaxFailures
	if maxFail <= 0 {
		maxFail = 3 * c.Frames
	}
	exp, err := c.Camera.GetExposureTime()
	if err != nil {
		return nil, fmt.Errorf("get exposure: %w", err)
	}

	var acc frame.Accumulator
	failures := 0
	for acc.N() < c.Frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Info("capturing dark frame", "camera", c.Name, "exposure", exp, "frame", acc.N()+1, "of", c.Frames)
		f, err := c.Camera.GetFrame(ctx)
		if err == nil {
			err = acc.Add(f)
		}
		if err != nil {
			failures++
			log.Warn("dark capture failed", "camera", c.Name, "failures", failures, "err", err)
			if failures >= maxFail {
				return nil, fmt.Errorf("%w: %d failures, last: %v", ErrTooManyFailures, failures, err)
			}
		}
		if c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
	}
	m := &Master{
		Camera:   c.Name,
		Exposure: exp,
		Distance: c.Distance,
		Frames:   acc.N(),
		Frame:    acc.Mean(),
	}
	st := frame.Describe(m.Frame)
	log.Info("master dark ready", "camera", c.Name, "frames", m.Frames, "max", st.Max, "min", st.Min, "std", st.Std)
	return m, nil
}
