// Package probe measures a rendered stepper page in headless Chrome and runs
// the stepper computations on the result.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/web3-frozen/ultrasound-monitor/internal/stepper"
)

const defaultTimeout = 45 * time.Second

// Layout is what the page reports about its stepper.
type Layout struct {
	Points            []stepper.Point `json:"points"`
	ScrollY           float64         `json:"scroll_y"`
	ViewportHeight    float64         `json:"viewport_height"`
	TrackWidth        float64         `json:"track_width"`
	BlockHeights      []float64       `json:"block_heights"`
	DrawingLineHeight float64         `json:"drawing_line_height"`
	SectionHeight     float64         `json:"section_height"`
	NextRegionHeight  float64         `json:"next_region_height"`
	PageLoaded        bool            `json:"page_loaded"`
}

// Report is the result of running the stepper computations on a Layout.
type Report struct {
	Layout        Layout             `json:"layout"`
	TrackPosition float64            `json:"track_position"`
	Percent       float64            `json:"percent"`
	Visibility    stepper.Visibility `json:"visibility"`
	// ScrollTarget is set when an icon offset was given.
	ScrollTarget *stepper.ScrollTarget `json:"scroll_target,omitempty"`
}

type Prober struct {
	logger  *slog.Logger
	timeout time.Duration
	// ExecPath overrides the Chrome binary; empty uses the one on PATH.
	ExecPath string
}

func New(logger *slog.Logger) *Prober {
	return &Prober{logger: logger, timeout: defaultTimeout}
}

// Measure loads url, scrolls to scrollY and reads the stepper layout.
func (p *Prober) Measure(ctx context.Context, url string, scrollY float64) (Layout, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 800),
	)
	if p.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	bctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	bctx, cancel = context.WithTimeout(bctx, p.timeout)
	defer cancel()

	if err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`[data-stepper-point]`, chromedp.ByQuery),
	); err != nil {
		return Layout{}, fmt.Errorf("chromedp navigate: %w", err)
	}

	var (
		raw      string
		scrolled float64
	)
	if err := chromedp.Run(bctx,
		chromedp.Evaluate(fmt.Sprintf("(window.scrollTo(0, %f), window.scrollY)", scrollY), &scrolled),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Evaluate(measureJS, &raw),
	); err != nil {
		return Layout{}, fmt.Errorf("chromedp measure: %w", err)
	}

	layout, err := parseLayout(raw)
	if err != nil {
		return Layout{}, err
	}
	p.logger.Info("measured stepper", "url", url, "points", len(layout.Points), "scroll_y", layout.ScrollY)
	return layout, nil
}

func parseLayout(raw string) (Layout, error) {
	var l Layout
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return Layout{}, fmt.Errorf("parse stepper layout: %w", err)
	}
	return l, nil
}

// Evaluate runs progress and visibility on a measured layout. A non-nil
// iconOffset also computes the scroll target for that icon position.
func Evaluate(l Layout, iconOffset *float64) (Report, error) {
	r := Report{Layout: l, TrackPosition: stepper.TrackPosition(l.ScrollY, l.ViewportHeight)}

	pct, err := stepper.ProgressPercent(l.Points, r.TrackPosition, l.PageLoaded)
	if err != nil {
		return Report{}, err
	}
	r.Percent = pct

	r.Visibility = stepper.ComputeVisibility(stepper.VisibilityInput{
		Points:           l.Points,
		ScrollY:          l.ScrollY,
		ViewportHeight:   l.ViewportHeight,
		SectionHeight:    l.SectionHeight,
		NextRegionHeight: l.NextRegionHeight,
	})

	if iconOffset != nil {
		t, err := stepper.ComputeScrollTarget(stepper.ScrollInput{
			Points:            l.Points,
			TrackWidth:        l.TrackWidth,
			IconOffset:        *iconOffset,
			BlockHeights:      l.BlockHeights,
			DrawingLineHeight: l.DrawingLineHeight,
		})
		if err != nil {
			return Report{}, err
		}
		r.ScrollTarget = &t
	}
	return r, nil
}

// measureJS is evaluated in the page. Elements are located by data attributes.
const measureJS = `
(() => {
	const top = el => el.getBoundingClientRect().top + window.scrollY;
	const height = sel => {
		const el = document.querySelector(sel);
		return el ? el.getBoundingClientRect().height : 0;
	};
	const blocks = Array.from(document.querySelectorAll('[data-stepper-block]'));
	const track = document.querySelector('[data-stepper-track]');
	return JSON.stringify({
		points: Array.from(document.querySelectorAll('[data-stepper-point]')).map(el => ({offset_y: top(el)})),
		scroll_y: window.scrollY,
		viewport_height: window.innerHeight,
		track_width: track ? track.getBoundingClientRect().width : 0,
		block_heights: blocks.map(el => el.getBoundingClientRect().height),
		drawing_line_height: height('[data-stepper-drawing-line]'),
		section_height: blocks.length ? blocks[blocks.length - 1].getBoundingClientRect().height : 0,
		next_region_height: height('[data-stepper-next]'),
		page_loaded: document.readyState === 'complete',
	});
})()
`
