package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasa-jpl/hsicap/camera"
	"github.com/nasa-jpl/hsicap/camera/cubert"
	"github.com/nasa-jpl/hsicap/camera/remote"
	"github.com/nasa-jpl/hsicap/camera/sim"
	"github.com/nasa-jpl/hsicap/config"
	"github.com/theckman/yacspin"
)

// shortName is the name used in master dark file names
func shortName(c config.Camera) string {
	if c.Name == cfg.Cubert.Name {
		return cubert.ShortName
	}
	return "tl"
}

func cameraConfig(name string) (config.Camera, error) {
	switch name {
	case cfg.Thorlabs.Name, "thorlabs", "tl":
		return cfg.Thorlabs, nil
	case cfg.Cubert.Name, "cubert", cubert.ShortName:
		return cfg.Cubert, nil
	}
	return config.Camera{}, fmt.Errorf("unknown camera %q", name)
}

// spinner shows progress while a camera is offline.  It only starts once the
// first offline poll comes back.
type spinner struct {
	name    string
	s       *yacspin.Spinner
	polls   int
	started bool
}

func newSpinner(name string) *spinner {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		StopMessage:       name + " online",
		StopFailMessage:   name + " did not come online",
	})
	if err != nil {
		s = nil
	}
	return &spinner{name: name, s: s}
}

func (sp *spinner) tick() {
	if sp.s == nil {
		return
	}
	if !sp.started {
		sp.started = sp.s.Start() == nil
	}
	sp.polls++
	sp.s.Message(fmt.Sprintf("waiting for %s to come online (%d polls)", sp.name, sp.polls))
}

func (sp *spinner) stop(ok bool) {
	if sp.s == nil || !sp.started {
		return
	}
	if ok {
		sp.s.Stop()
	} else {
		sp.s.StopFail()
	}
}

// openCamera connects to the camera c describes and brings it up.  The
// returned Setup reapplies the same settings after a reset.
func openCamera(ctx context.Context, c config.Camera, log *slog.Logger) (camera.Camera, camera.Setup, error) {
	var cam camera.Camera
	if c.Addr == config.Sim {
		cam = sim.New(c.Name, c.SimShape...)
		log.Warn("using a simulated camera", "camera", c.Name, "shape", c.SimShape)
	} else {
		cam = remote.New(c.Addr, c.Name)
	}
	setup := camera.Setup{
		Exposure: c.Exposure(),
		Distance: c.DistanceMM,
		Poll:     500 * time.Millisecond,
	}
	sp := newSpinner(c.Name)
	first := setup
	first.Tick = sp.tick
	err := first.Apply(ctx, cam)
	sp.stop(err == nil)
	if err != nil {
		return nil, setup, err
	}
	log.Info("camera ready", "camera", c.Name, "addr", c.Addr, "exposure", setup.Exposure, "distance_mm", setup.Distance)
	return cam, setup, nil
}
