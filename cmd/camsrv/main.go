package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/lmittmann/tint"
	"github.com/nasa-jpl/hsicap/camera/cubert"
	"github.com/nasa-jpl/hsicap/camera/sim"
	"github.com/nasa-jpl/hsicap/generichttp"
	"github.com/nasa-jpl/hsicap/generichttp/camera"
	"github.com/nasa-jpl/hsicap/imgrec"
	"github.com/nasa-jpl/hsicap/server/middleware/locker"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "camsrv.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the folder served frames are copied to; empty disables it
	Root string `koanf:"root" yaml:"root"`

	// Format is tiff or fits
	Format string `koanf:"format" yaml:"format"`
}

type config struct {
	Addr     string   `koanf:"addr" yaml:"addr"`
	Root     string   `koanf:"root" yaml:"root"`
	Camera   string   `koanf:"camera" yaml:"camera"`
	Shape    []int    `koanf:"shape" yaml:"shape"`
	Level    float64  `koanf:"level" yaml:"level"`
	Noise    float64  `koanf:"noise" yaml:"noise"`
	Readout  float64  `koanf:"readout_ms" yaml:"readout_ms"`
	Recorder recorder `koanf:"recorder" yaml:"recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:     ":8000",
		Root:     "/cubert",
		Camera:   "cubert",
		Shape:    []int{32, 32, 106},
		Level:    1000,
		Noise:    50,
		Recorder: recorder{Format: string(imgrec.FITS)},
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `camsrv exposes a camera over HTTP in the form hsicap drives with a
remote camera address.  This build serves a simulated camera, for exercising
the capture software without hardware.

Usage:
	camsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `camsrv is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.
The command mkconf generates the configuration file with the default values.

Routes, below root:
	GET  /image          a frame, as FITS
	GET  /exposure-time  seconds, as {"f64": ...}
	POST /exposure-time  ?exposureTime=100ms or {"f64": seconds}
	GET  /state          {"bool": true} once the camera is online
	POST /distance       {"f64": mm}
	POST /initialize, /finalize, /reset
	GET  /lock, POST /lock {"bool": true, "holder": "id"} locks every other
	     route (423) except for requests sending X-Lock-Holder: id

With camera: cubert, the CUVIS SDK environment is checked at startup and the
factory and settings directories are logged.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("camsrv version %v\n", Version)
}

func run() {
	cfg := config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Fatal(err)
	}
	lg := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.TimeOnly}))

	if cfg.Camera == "cubert" {
		paths, err := cubert.FromEnv()
		if err == nil {
			err = paths.Check()
		}
		if err != nil {
			lg.Warn("cubert SDK not usable, serving the simulation only", "err", err)
		} else {
			lg.Info("cubert SDK found", "factory", paths.Factory, "settings", paths.Settings)
		}
	}

	c := sim.New(cfg.Camera, cfg.Shape...)
	c.Level = cfg.Level
	c.Noise = cfg.Noise
	c.Readout = time.Duration(cfg.Readout * float64(time.Millisecond))

	var rec *imgrec.Recorder
	if cfg.Recorder.Root != "" {
		format, err := imgrec.ParseFormat(cfg.Recorder.Format)
		if err != nil {
			log.Fatal(err)
		}
		rec = &imgrec.Recorder{Root: cfg.Recorder.Root, Camera: cfg.Camera, Format: format}
	}
	w := camera.NewHTTPCamera(c, rec)
	lock := locker.New()
	locker.Inject(w, lock)

	// clean up the submux string
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	mux := chi.NewRouter()
	mux.Use(lock.Check)
	root.Mount(hndlrS, mux)
	w.RT().Bind(mux)
	lg.Info("now listening for requests", "addr", cfg.Addr+hndlrS, "camera", cfg.Camera, "shape", cfg.Shape)
	log.Fatal(http.ListenAndServe(cfg.Addr, root))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
