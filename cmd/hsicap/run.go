package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nasa-jpl/hsicap/acquire"
	"github.com/nasa-jpl/hsicap/archive"
	"github.com/nasa-jpl/hsicap/camera/remote"
	"github.com/nasa-jpl/hsicap/catalog"
	"github.com/nasa-jpl/hsicap/config"
	"github.com/nasa-jpl/hsicap/darkref"
	"github.com/nasa-jpl/hsicap/display"
	"github.com/nasa-jpl/hsicap/display/screen"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/metrics"
	"github.com/nasa-jpl/hsicap/retry"
	"github.com/nasa-jpl/hsicap/server"
	"github.com/nasa-jpl/hsicap/util"
)

func loadDark(c config.Camera, log *slog.Logger) *frame.Frame {
	dark, err := darkref.Lookup(cfg.Dark.Dir, shortName(c), c.Exposure())
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("no master dark for this exposure, frames are stored without dark subtraction",
			"camera", c.Name, "want", darkref.FileName(shortName(c), c.Exposure()), "dir", cfg.Dark.Dir)
		return nil
	}
	if err != nil {
		log.Error("could not load master dark", "camera", c.Name, "err", err)
		os.Exit(1)
	}
	log.Info("loaded master dark", "camera", c.Name, "shape", dark.Shape)
	return dark
}

func openCatalog(ctx context.Context) catalog.Store {
	if cfg.DatabaseURL != "" {
		p, err := catalog.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		return p
	}
	if cfg.CatalogPath == "" {
		return catalog.Discard{}
	}
	f, err := catalog.OpenFile(cfg.Under(cfg.CatalogPath))
	if err != nil {
		log.Fatal(err)
	}
	return f
}

func openArchive(ctx context.Context) archive.Archiver {
	if !cfg.Archive.Enabled() {
		return nil
	}
	m, err := archive.NewMirror(cfg.Archive)
	if err != nil {
		log.Fatal(err)
	}
	if err := m.EnsureBucket(ctx); err != nil {
		log.Fatal(err)
	}
	return m
}

func channel(ctx context.Context, c config.Camera, p func(frame.Rect) acquire.Pipeline, format imgrec.Format, lg *slog.Logger) *acquire.Channel {
	cam, setup, err := openCamera(ctx, c, lg)
	if err != nil {
		lg.Error("camera setup failed", "camera", c.Name, "err", err)
		os.Exit(1)
	}
	return &acquire.Channel{
		Camera:       cam,
		Setup:        setup,
		Dark:         loadDark(c, lg),
		Process:      p(c.Crop),
		Recorder:     &imgrec.Recorder{Root: cfg.Under(c.Dir), Camera: c.Name, Format: format},
		SNRThreshold: c.SNRThreshold,
		Retry:        retry.Policy{MaxAttempts: cfg.MaxAttempts, Delay: cfg.RetryDelay()},
		ResetOnError: c.ResetOnError,
	}
}

// sequencer picks what drives the cycles: the operator in sequential mode,
// the image folder otherwise, or a plain counter when there is no folder.
// win is non-nil when a window must be run on the main goroutine.
func sequencer(sequential bool, skip int, lg *slog.Logger) (acquire.Sequencer, *screen.Window) {
	if sequential {
		return &display.Manual{In: os.Stdin, Prompt: os.Stdout}, nil
	}
	interval := util.MsToDuration(cfg.Display.IntervalMS)
	if cfg.Display.Dir == "" {
		return &display.Counter{Start: skip, Interval: interval}, nil
	}
	var (
		scr display.Screen
		win *screen.Window
	)
	if cfg.Display.Headless {
		scr = &display.Headless{W: cfg.Display.Width, H: cfg.Display.Height, Log: lg}
	} else {
		win = screen.New(cfg.Display.Width, cfg.Display.Height)
		scr = win
	}
	f, err := display.NewFolder(cfg.Display.Dir, scr, interval)
	if err != nil {
		log.Fatal(err)
	}
	f.Warmup = util.MsToDuration(cfg.Display.WarmupMS)
	f.Settle = util.MsToDuration(cfg.Display.SettleMS)
	f.Skip(skip)
	lg.Info("displaying images", "dir", cfg.Display.Dir, "count", f.Len(), "skipped", skip)
	return f, win
}

func run(sequential bool) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config:\n%v", err)
	}
	lg := newLogger()
	format, _ := imgrec.ParseFormat(cfg.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tl := channel(ctx, cfg.Thorlabs, acquire.ThorlabsPipeline, format, lg)
	cb := channel(ctx, cfg.Cubert, acquire.CubertPipeline, format, lg)
	defer tl.Camera.Finalize()
	defer cb.Camera.Finalize()

	store := openCatalog(ctx)
	defer store.Close()
	m := metrics.New()
	opts := []acquire.Option{
		acquire.WithLogger(lg),
		acquire.WithMetrics(m),
		acquire.WithCatalog(store),
		acquire.WithCycleTimeout(cfg.CycleTimeout()),
		acquire.WithSequential(sequential),
		acquire.WithStartIndex(cfg.StartIndex),
	}
	if a := openArchive(ctx); a != nil {
		opts = append(opts, acquire.WithArchiver(a))
	}
	orch, err := acquire.New([]*acquire.Channel{tl, cb}, opts...)
	if err != nil {
		log.Fatal(err)
	}
	next, err := orch.NextIndex()
	if err != nil {
		log.Fatal(err)
	}
	for _, ch := range []*acquire.Channel{tl, cb} {
		rc, ok := ch.Camera.(*remote.Camera)
		if !ok {
			continue
		}
		rc.Holder = orch.Session().String()
		if err := rc.Lock(ctx); err != nil {
			lg.Error("could not lock camera server", "camera", rc.Name(), "err", err)
			os.Exit(1)
		}
		defer rc.Unlock(context.Background())
	}

	if cfg.StatusAddr != "" {
		srv := server.New(orch, m, cfg.OutputRoot)
		go func() {
			if err := server.ListenAndServe(ctx, cfg.StatusAddr, srv.Handler(), lg); err != nil {
				lg.Error("status server stopped", "err", err)
			}
		}()
	}

	seq, win := sequencer(sequential, next, lg)
	done := make(chan error, 1)
	go func() {
		sum, err := orch.Run(ctx, seq)
		fmt.Printf("%d cycles: %d paired, %d failed, %d skipped\n", sum.Cycles, sum.Paired, sum.Failed, sum.Skipped)
		done <- err
		if win != nil {
			win.Close()
		}
	}()
	if win != nil {
		go func() {
			<-ctx.Done()
			win.Close()
		}()
		if err := win.Run(cfg.Display.Monitor, cfg.Display.Fullscreen); err != nil {
			lg.Error("display window failed", "err", err)
		}
		// the window closing ends the session
		stop()
	}
	err = <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("capture session ended with an error", "err", err)
		os.Exit(1)
	}
}
