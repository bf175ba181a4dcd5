// Package sim provides a simulated camera for bench work and tests.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/frame"
)

// FailFirst returns a Fail hook that errors on the first n frames
func FailFirst(n int, err error) func(int) error {
	return func(frameNo int) error {
		if frameNo <= n {
			return err
		}
		return nil
	}
}

// FailAlways returns a Fail hook that errors on every frame
func FailAlways(err error) func(int) error {
	return func(int) error { return err }
}

// Camera is a simulated camera.  Frames are Level counts per 100 ms of
// exposure plus uniform noise of +/- Noise counts.  It is concurrent safe.
type Camera struct {
	mu sync.Mutex

	name     string
	shape    []int
	exposure time.Duration
	distance float64
	open     bool
	rng      *rand.Rand

	frames int
	inits  int
	polls  int

	// Level is the signal in counts per 100 ms of exposure
	Level float64

	// Noise is the half width of the uniform noise, in counts
	Noise float64

	// Readout is how long a capture takes beyond the exposure
	Readout time.Duration

	// Fail, when non-nil, is consulted for every requested frame, numbered
	// from 1.  A non-nil return is given to the caller instead of a frame.
	Fail func(frameNo int) error

	// OfflinePolls is the number of state polls that report offline after
	// each Initialize
	OfflinePolls int
}

// New returns a simulated camera producing frames of the given shape
func New(name string, shape ...int) *Camera {
	return &Camera{
		name:     name,
		shape:    append([]int(nil), shape...),
		exposure: 100 * time.Millisecond,
		rng:      rand.New(rand.NewSource(1)),
		Level:    1000,
		Noise:    50,
	}
}

// Name implements camera.Camera
func (c *Camera) Name() string {
	return c.name
}

// Initialize implements camera.Camera
func (c *Camera) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.inits++
	c.polls = 0
	return nil
}

// Finalize implements camera.Camera
func (c *Camera) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// SetExposureTime implements camera.Camera
func (c *Camera) SetExposureTime(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exposure = d
	return nil
}

// GetExposureTime implements camera.Camera
func (c *Camera) GetExposureTime() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure, nil
}

// SetDistance implements camera.DistanceSetter
func (c *Camera) SetDistance(mm float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.distance = mm
	return nil
}

// Distance returns the last distance set
func (c *Camera) Distance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distance
}

// Online implements camera.StateReporter
func (c *Camera) Online(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	return c.open && c.polls > c.OfflinePolls, nil
}

// GetFrame implements camera.Camera
func (c *Camera) GetFrame(ctx context.Context) (*frame.Frame, error) {
	c.mu.Lock()
	c.frames++
	n := c.frames
	open := c.open
	wait := c.Readout
	fail := c.Fail
	c.mu.Unlock()

	if !open {
		return nil, camera.ErrNotInitialized
	}
	if fail != nil {
		if err := fail(n); err != nil {
			return nil, err
		}
	}
	if wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f := frame.New(c.shape...)
	signal := c.Level * float64(c.exposure) / float64(100*time.Millisecond)
	for i := range f.Data {
		f.Data[i] = signal + (2*c.rng.Float64()-1)*c.Noise
	}
	return f, nil
}

// Frames is the number of frames requested so far, failed ones included
func (c *Camera) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Inits is the number of times Initialize was called
func (c *Camera) Inits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inits
}
