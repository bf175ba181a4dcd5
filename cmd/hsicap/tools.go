package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/nasa-jpl/hsicap/analysis"
	"github.com/nasa-jpl/hsicap/catalog"
	"github.com/nasa-jpl/hsicap/darkref"
	"github.com/nasa-jpl/hsicap/frame"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/util"
	"gonum.org/v1/gonum/mat"
)

// parseRect parses "x0,x1,y0,y1"
func parseRect(s string) (frame.Rect, error) {
	if s == "" {
		return frame.Rect{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return frame.Rect{}, fmt.Errorf("region %q is not x0,x1,y0,y1", s)
	}
	v := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return frame.Rect{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return frame.Rect{X0: v[0], X1: v[1], Y0: v[2], Y1: v[3]}, nil
}

// fileAndRegion reads args of the form <file> [x0,x1,y0,y1]
func fileAndRegion(cmd string, args []string) (*frame.Frame, frame.Rect) {
	if len(args) < 1 {
		log.Fatalf("usage: hsicap %s <file> [x0,x1,y0,y1]", cmd)
	}
	f, err := imgrec.ReadFile(args[0])
	if err != nil {
		log.Fatal(err)
	}
	var r frame.Rect
	if len(args) > 1 {
		r, err = parseRect(args[1])
		if err != nil {
			log.Fatal(err)
		}
	}
	return f, r
}

func darkcal(args []string) {
	if len(args) != 1 {
		log.Fatal("usage: hsicap darkcal <thorlabs|cubert>")
	}
	c, err := cameraConfig(strings.ToLower(args[0]))
	if err != nil {
		log.Fatal(err)
	}
	lg := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cam, _, err := openCamera(ctx, c, lg)
	if err != nil {
		log.Fatal(err)
	}
	defer cam.Finalize()
	cal := darkref.Calibrator{
		Camera:      cam,
		Name:        shortName(c),
		Frames:      cfg.Dark.Frames,
		MaxFailures: cfg.Dark.MaxFailures,
		Delay:       util.MsToDuration(cfg.Dark.DelayMS),
		Distance:    c.DistanceMM,
		Logger:      lg,
	}
	m, err := cal.Calibrate(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fn, err := m.Save(cfg.Dark.Dir)
	if err != nil {
		log.Fatal(err)
	}
	lg.Info("saved master dark", "path", fn, "frames", m.Frames)
}

func darkavg(args []string) {
	if len(args) != 2 {
		log.Fatal("usage: hsicap darkavg <dir> <out.npy>")
	}
	f, n, err := darkref.AverageTIFFs(args[0])
	if err != nil {
		log.Fatal(err)
	}
	out, err := os.Create(args[1])
	if err != nil {
		log.Fatal(err)
	}
	err = darkref.WriteNPY(out, f)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("averaged %d files into %s, shape %v\n%s\n", n, args[1], f.Shape, frame.Describe(f))
}

func verify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	nan := fs.Bool("nan", false, "read every file and count NaN values")
	crop := fs.String("crop", "", "crop every file in place to x0,x1,y0,y1 after verifying")
	fs.Parse(args)

	format, err := imgrec.ParseFormat(cfg.Format)
	if err != nil {
		log.Fatal(err)
	}
	tl := &imgrec.Recorder{Root: cfg.Under(cfg.Thorlabs.Dir), Camera: cfg.Thorlabs.Name, Format: format}
	cb := &imgrec.Recorder{Root: cfg.Under(cfg.Cubert.Dir), Camera: cfg.Cubert.Name, Format: format}
	rep, err := analysis.Verify(tl, cb, *nan)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(rep.String())
	if *crop != "" {
		r, err := parseRect(*crop)
		if err != nil {
			log.Fatal(err)
		}
		for _, rec := range []*imgrec.Recorder{tl, cb} {
			n, err := analysis.CropAll(rec, r)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("cropped %d %s files\n", n, rec.Camera)
		}
	}
	if !rep.OK() {
		os.Exit(1)
	}
}

func snr(args []string) {
	f, r := fileAndRegion("snr", args)
	v, err := analysis.RegionSNR(f, r)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s SNR: %.4f\n", filepath.Base(args[0]), v)
}

func spectrum(args []string) {
	f, r := fileAndRegion("spectrum", args)
	s, err := analysis.MeanSpectrum(f, r)
	if err != nil {
		log.Fatal(err)
	}
	wl := analysis.Wavelengths(len(s), analysis.MinWavelength, analysis.MaxWavelength)
	fmt.Println("wavelength_nm,intensity")
	for i := range s {
		fmt.Printf("%.2f,%.6g\n", wl[i], s[i])
	}
}

func polstats(args []string) {
	f, _ := fileAndRegion("polstats", args)
	stats, err := analysis.ChannelStats(f, analysis.PolarLabels()...)
	if err != nil {
		log.Fatal(err)
	}
	for _, s := range stats {
		fmt.Printf("%-8s mean %.4f  SNR %.4f\n", s.Label, s.Mean, s.SNR)
	}
}

func corr(args []string) {
	if len(args) < 3 {
		log.Fatal("usage: hsicap corr <dark.npy> <file> <file>...")
	}
	dark, err := darkref.Load(args[0])
	if err != nil {
		log.Fatal(err)
	}
	frames := make([]*frame.Frame, 0, len(args)-1)
	for _, fn := range args[1:] {
		f, err := imgrec.ReadFile(fn)
		if err != nil {
			log.Fatal(err)
		}
		frames = append(frames, f)
	}
	m, err := analysis.CorrelationMatrix(frames, dark)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%.4f\n", mat.Formatted(m, mat.Squeeze()))
}

// sessions opens the catalog the config points at for reading
func sessions(ctx context.Context) (catalog.Sessions, func() error, error) {
	if cfg.DatabaseURL != "" {
		p, err := catalog.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
	if cfg.CatalogPath == "" {
		return nil, nil, fmt.Errorf("neither database_url nor catalog_path is configured")
	}
	return catalog.FileSessions(cfg.Under(cfg.CatalogPath)), func() error { return nil }, nil
}

// printCycles writes one line per cycle and returns how many were paired
func printCycles(w io.Writer, entries []catalog.Entry) int {
	paired := 0
	for _, e := range entries {
		state := "UNPAIRED"
		if e.Paired {
			state = "paired"
			paired++
		}
		shots := make([]string, len(e.Shots))
		for i, s := range e.Shots {
			shots[i] = fmt.Sprintf("%s x%d snr=%.3g", s.Camera, s.Attempts, s.SNR)
			if s.Err != "" {
				shots[i] += " (" + s.Err + ")"
			}
		}
		fmt.Fprintf(w, "%6d  %-24s  %-8s  %s\n", e.Index, e.Name, state, strings.Join(shots, ", "))
	}
	fmt.Fprintf(w, "%d cycles, %d paired\n", len(entries), paired)
	return paired
}

func cycles(args []string) {
	if len(args) != 1 {
		log.Fatal("usage: hsicap cycles <session-id>")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	src, closer, err := sessions(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer closer()
	entries, err := src.Session(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	if len(entries) == 0 {
		log.Fatalf("no cycles recorded for session %s", id)
	}
	printCycles(os.Stdout, entries)
}
