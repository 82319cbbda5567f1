package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	args := os.Args[2:]

	var code int
	switch command {
	case "detect":
		code = handleDetect(ctx, args)
	case "stats":
		code = handleStats(ctx, args)
	case "organize":
		code = handleOrganize(ctx, args)
	case "report":
		code = handleReport(ctx, args)
	case "extract":
		code = handleExtract(ctx, args)
	case "synth":
		code = handleSynth(args)
	case "version":
		fmt.Printf("flashtrap version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		code = 1
	}

	stop()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`flashtrap - firefly flash detection for camera trap frames

Usage: flashtrap <command> [options]

Commands:
  detect     Find frames with genuine flashes and place them in <input>/_flash
  stats      Measure frame brightness and sort frames into days/dusk/dark/null
  organize   Flatten a DCIM card into date folders named by EXIF capture time
  report     Write an Excel summary of a flash folder and a hotspot chart of a run
  extract    Extract frames from a camera trap video with ffmpeg
  synth      Write synthetic frames with one Gaussian spot each
  version    Show flashtrap version
  help       Show this help message

Every detect option can also be set through a FLASHTRAP_* environment
variable, e.g. FLASHTRAP_THRESHOLD=40. Flags win over the environment.

Examples:
  flashtrap detect -input /data/site/dark/20240621
  flashtrap detect -input ./frames -action link -storage sqlite -metrics-addr :9090
  flashtrap stats -input /data/site -output /data/site-sorted
  flashtrap report -input ./frames/_flash -output flashes.xlsx -start 2024-06-21`)
}

// newLogger configures the colored console logger used by every command.
func newLogger(level slog.Level, noColor bool) *slog.Logger {
	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    noColor,
		}),
	)
}
