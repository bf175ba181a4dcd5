/*Package camera describes the interface the acquisition code uses to drive a
camera, independent of the vendor SDK behind it.

Camera holds the basics every device in the experiment supports.  The
optional interfaces (StateReporter, DistanceSetter) are discovered by type
assertion, as not every camera has a hardware state flag or a processing
distance.
*/
package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nasa-jpl/hsicap/frame"
)

var (
	// ErrNoData is returned when a capture produced no measurement within
	// the driver's capture timeout
	ErrNoData = errors.New("camera: no data within capture timeout")

	// ErrNotInitialized is returned when a frame is requested from a closed camera
	ErrNotInitialized = errors.New("camera: not initialized")
)

// Camera describes a camera with only the basics.
type Camera interface {
	// Name identifies the camera in file names and logs, e.g. "thorlabs"
	Name() string

	// Initialize opens the device.  This may have myriad side effects, for
	// example loading calibration data into a vendor SDK or allocating
	// readout buffers.
	Initialize() error

	// Finalize closes the device.  A finalized camera may be initialized again.
	Finalize() error

	// SetExposureTime sets the exposure (integration) time
	SetExposureTime(time.Duration) error

	// GetExposureTime gets the exposure time
	GetExposureTime() (time.Duration, error)

	// GetFrame triggers a capture and blocks until the frame is read out
	GetFrame(ctx context.Context) (*frame.Frame, error)
}

// StateReporter is implemented by cameras which expose a hardware online flag
type StateReporter interface {
	// Online reports if the hardware is ready to capture
	Online(ctx context.Context) (bool, error)
}

// DistanceSetter is implemented by cameras whose processing depends on the
// distance to the scene, such as snapshot hyperspectral cameras
type DistanceSetter interface {
	// SetDistance sets the scene distance in millimeters
	SetDistance(mm float64) error
}

// Reset finalizes c and brings it back up with s.  The finalize error is
// dropped; a device that failed badly enough to need a reset often fails to
// close, too.
func Reset(ctx context.Context, c Camera, s Setup) error {
	_ = c.Finalize()
	return s.Apply(ctx, c)
}

// WaitOnline polls c every interval until it reports online or ctx is done.
// Cameras without a StateReporter are considered online.  tick, if not nil,
// is called after every poll that found the camera offline.
func WaitOnline(ctx context.Context, c Camera, interval time.Duration, tick func()) error {
	sr, ok := c.(StateReporter)
	if !ok {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		up, err := sr.Online(ctx)
		if err != nil {
			return fmt.Errorf("query %s state: %w", c.Name(), err)
		}
		if up {
			return nil
		}
		if tick != nil {
			tick()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Setup is the common bring-up of a camera at the start of a session:
// initialize, wait for the hardware, then apply exposure and distance.
type Setup struct {
	// Exposure is the exposure time to apply
	Exposure time.Duration

	// Distance, if nonzero, is applied to cameras implementing DistanceSetter
	Distance float64

	// Poll is the state polling interval; one second if zero
	Poll time.Duration

	// Tick is passed to WaitOnline
	Tick func()
}

// Apply performs s on c
func (s Setup) Apply(ctx context.Context, c Camera) error {
	if err := c.Initialize(); err != nil {
		return fmt.Errorf("initialize %s: %w", c.Name(), err)
	}
	poll := s.Poll
	if poll == 0 {
		poll = time.Second
	}
	if err := WaitOnline(ctx, c, poll, s.Tick); err != nil {
		return err
	}
	if s.Exposure > 0 {
		if err := c.SetExposureTime(s.Exposure); err != nil {
			return fmt.Errorf("set %s exposure: %w", c.Name(), err)
		}
	}
	if s.Distance > 0 {
		if ds, ok := c.(DistanceSetter); ok {
			if err := ds.SetDistance(s.Distance); err != nil {
				return fmt.Errorf("set %s distance: %w", c.Name(), err)
			}
		}
	}
	return nil
}
