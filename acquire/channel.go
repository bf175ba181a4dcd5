package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/retry"
)

// ErrLowSNR is returned for a frame whose SNR did not exceed the threshold
var ErrLowSNR = errors.New("acquire: SNR below threshold")

// ErrPartnerFailed marks a frame that was captured but deleted because
// another channel failed in the same cycle
var ErrPartnerFailed = errors.New("acquire: frame deleted, partner camera failed")

// ErrSkipped marks a channel that was not attempted in sequential mode
var ErrSkipped = errors.New("acquire: not attempted, earlier camera failed")

// Pipeline turns a raw frame into the frame that is stored.  dark is nil
// when no master dark is loaded.
type Pipeline func(raw, dark *frame.Frame) (*frame.Frame, error)

func subtract(raw, dark *frame.Frame) (*frame.Frame, error) {
	if dark == nil {
		return raw, nil
	}
	return frame.SubtractDark(raw, dark)
}

// ThorlabsPipeline processes a raw [H W] polarization sensor frame: dark
// subtraction with clamping, demosaicing into the 0, 45, 90 and 135 degree
// planes plus the raw plane, then the optional crop.  The result is [5 H W].
func ThorlabsPipeline(crop frame.Rect) Pipeline {
	return func(raw, dark *frame.Frame) (*frame.Frame, error) {
		f, err := subtract(raw, dark)
		if err != nil {
			return nil, err
		}
		f, err = frame.DemosaicWithRaw(f)
		if err != nil {
			return nil, err
		}
		return frame.Crop(f, crop)
	}
}

// CubertPipeline processes a raw [H W B] hyperspectral cube: dark
// subtraction with clamping, transposition to [B H W], then the optional crop.
func CubertPipeline(crop frame.Rect) Pipeline {
	return func(raw, dark *frame.Frame) (*frame.Frame, error) {
		f, err := subtract(raw, dark)
		if err != nil {
			return nil, err
		}
		f, err = frame.ToBandFirst(f)
		if err != nil {
			return nil, err
		}
		return frame.Crop(f, crop)
	}
}

// Channel is one camera and everything needed to turn its captures into
// dataset files
type Channel struct {
	// Camera is the device, already set up
	Camera camera.Camera

	// Setup is reapplied when the camera is reset
	Setup camera.Setup

	// Dark is the master dark for the configured exposure, or nil
	Dark *frame.Frame

	// Process is the processing pipeline; frames are stored raw if nil
	Process Pipeline

	// Recorder writes the dataset files
	Recorder *imgrec.Recorder

	// SNRThreshold rejects frames whose SNR is not above it.  Zero disables
	// the check.
	SNRThreshold float64

	// Retry bounds the attempts per cycle
	Retry retry.Policy

	// ResetOnError finalizes and reinitializes the camera after a device
	// error, before the next attempt
	ResetOnError bool
}

// Name is the camera name
func (ch *Channel) Name() string {
	return ch.Camera.Name()
}

// Outcome is one channel's result for a cycle
type Outcome struct {
	Camera   string
	Path     string
	Attempts int
	SNR      float64
	Stats    frame.Stats
	Elapsed  time.Duration
	Err      error
}

// OK is true when a file was written and kept
func (o Outcome) OK() bool {
	return o.Err == nil && o.Path != ""
}

type shot struct {
	path  string
	stats frame.Stats
}

// capture runs the bounded retry loop for one channel.  If ctx is done by
// the time a file is written, the file is removed again: the orchestrator
// has given up on this cycle and nobody else will clean it up.
func (o *Orchestrator) capture(ctx context.Context, ch *Channel, index int) Outcome {
	name := ch.Name()
	log := o.log.With("camera", name, "index", index)
	start := time.Now()
	needReset := false

	try := func(ctx context.Context, attempt int) (shot, error) {
		if needReset {
			if err := camera.Reset(ctx, ch.Camera, ch.Setup); err != nil {
				o.metrics.Attempt(name, "reset_error")
				return shot{}, fmt.Errorf("reset: %w", err)
			}
			needReset = false
		}
		raw, err := ch.Camera.GetFrame(ctx)
		if err != nil {
			needReset = ch.ResetOnError
			o.metrics.Attempt(name, "device_error")
			return shot{}, err
		}
		f := raw
		if ch.Process != nil {
			f, err = ch.Process(raw, ch.Dark)
			if err != nil {
				o.metrics.Attempt(name, "process_error")
				return shot{}, fmt.Errorf("process: %w", err)
			}
		}
		st := frame.Describe(f)
		if ch.SNRThreshold > 0 && !(st.SNR > ch.SNRThreshold) {
			o.metrics.Attempt(name, "low_snr")
			return shot{}, fmt.Errorf("%w: %.4g <= %.4g", ErrLowSNR, st.SNR, ch.SNRThreshold)
		}
		path, err := ch.Recorder.Write(index, f)
		if err != nil {
			o.metrics.Attempt(name, "write_error")
			return shot{}, err
		}
		o.metrics.Attempt(name, "ok")
		return shot{path: path, stats: st}, nil
	}
	notify := func(attempt int, err error) {
		log.Warn("capture attempt failed", "attempt", attempt, "err", err)
	}

	res := retry.Do(ctx, ch.Retry, try, notify)
	out := Outcome{
		Camera:   name,
		Attempts: res.Attempts,
		Elapsed:  time.Since(start),
	}
	if !res.OK {
		out.Err = res.Err
		log.Error("capture failed", "attempts", res.Attempts, "err", res.Err)
		return out
	}
	if err := ctx.Err(); err != nil {
		rerr := ch.Recorder.Remove(index)
		o.metrics.Orphan(rerr)
		if rerr != nil {
			log.Error("could not remove abandoned file", "path", res.Value.path, "err", rerr)
		}
		out.Err = err
		log.Warn("cycle abandoned after capture, file removed", "path", res.Value.path)
		return out
	}
	out.Path = res.Value.path
	out.SNR = res.Value.stats.SNR
	out.Stats = res.Value.stats
	o.metrics.Captured(name, out.SNR, out.Elapsed)
	log.Info("frame saved", "path", out.Path, "attempts", res.Attempts, "stats", out.Stats.String())
	return out
}
