package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nasa-jpl/hsicap/config"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = config.FileName

	cfg config.Config
)

func setupconfig() {
	if fn := os.Getenv("HSICAP_CONFIG"); fn != "" {
		ConfigFileName = fn
	}
	c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	cfg = c
}

func newLogger() *slog.Logger {
	lvl, err := cfg.Level()
	if err != nil {
		log.Fatal(err)
	}
	l := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(l)
	return l
}

func root() {
	str := `hsicap captures paired polarization and hyperspectral images of
reference images shown on a monitor, and builds dark frame calibrations
for both cameras.

Usage:
	hsicap <command> [arguments]

Capture:
	run          show every image in the display folder and capture a pair for each
	sequential   capture on Enter, polarization camera first, hyperspectral only if it succeeded

Calibration:
	darkcal <thorlabs|cubert>   capture and average dark frames into a master dark
	darkavg <dir> <out.npy>     average a folder of dark TIFFs into a master dark

Analysis:
	verify [-nan] [-crop x0,x1,y0,y1]   check the dataset is fully paired
	snr <file> [x0,x1,y0,y1]            SNR of a region
	spectrum <file> [x0,x1,y0,y1]       mean spectrum of a region of a cube
	polstats <file>                     mean intensity per polarization channel
	corr <dark.npy> <file>...           correlation matrix of dark subtracted images
	cycles <session-id>                 the catalog's record of one capture session

Other:
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `hsicap is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  The command mkconf
generates the configuration file with the default values.  Any key can also be
set from the environment: HSICAP_MAX_ATTEMPTS=5, or HSICAP_CUBERT__EXPOSURE_MS=250
for nested keys.  HSICAP_CONFIG names a different config file.

A camera whose addr is "sim" is simulated.  Any other addr is the URL of a
camsrv (or compatible) camera server, e.g. http://cubert-pc:8000/cubert.

Each cycle either keeps one file per camera or none.  Every camera is retried
up to max_attempts times per image; frames whose SNR is not above the camera's
snr_threshold are retried too.  A threshold of 0 disables the check.

Master darks are looked up in dark.dir as masterdark_<tl|cb>_<exposure>ms.npy
and subtracted before the SNR check.  Without one, frames are stored raw.`
	fmt.Println(str)
}

func mkconf() {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(cfg)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	err := yml.NewEncoder(os.Stdout).Encode(cfg)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("hsicap version %v\n", Version)
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
	rest := args[2:]
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "run":
		run(false)
	case "sequential":
		run(true)
	case "darkcal":
		darkcal(rest)
	case "darkavg":
		darkavg(rest)
	case "verify":
		verify(rest)
	case "snr":
		snr(rest)
	case "spectrum":
		spectrum(rest)
	case "polstats":
		polstats(rest)
	case "corr":
		corr(rest)
	case "cycles":
		cycles(rest)
	default:
		log.Fatal("unknown command")
	}
}
