// Command stepper-probe loads a page with a scroll-linked stepper in headless
// Chrome and prints the computed progress, header visibility and, with
// -icon, the scroll target for a dragged icon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/web3-frozen/ultrasound-monitor/internal/probe"
)

func main() {
	var (
		url     = flag.String("url", "http://localhost:3000", "page to measure")
		scrollY = flag.Float64("scroll", 0, "vertical scroll position before measuring")
		icon    = flag.Float64("icon", -1, "icon offset along the track; negative skips the scroll target")
		chrome  = flag.String("chrome", "", "path to the Chrome binary")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := probe.New(logger)
	p.ExecPath = *chrome

	layout, err := p.Measure(ctx, *url, *scrollY)
	if err != nil {
		logger.Error("measure failed", "url", *url, "error", err)
		os.Exit(1)
	}

	var iconOffset *float64
	if *icon >= 0 {
		iconOffset = icon
	}
	report, err := probe.Evaluate(layout, iconOffset)
	if err != nil {
		logger.Error("evaluate failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("encode report", "error", err)
		os.Exit(1)
	}
}
