package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("scans"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// printSummary writes one line per scan followed by the totals.
func printSummary(w io.Writer, outcomes []scanOutcome) {
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)
	dim := color.New(color.Faint)

	var polaroids, failedRegions, failedScans int
	for _, o := range outcomes {
		name := filepath.Base(o.Path)
		switch {
		case o.Err != nil:
			failedScans++
			fail.Fprintf(w, "✗ %s: %v\n", name, o.Err)
		case o.Skipped:
			dim.Fprintf(w, "- %s: skipped\n", name)
		case o.RegionsFailed > 0:
			warn.Fprintf(w, "⚠ %s: %d polaroids, %d regions failed\n", name, len(o.Written), o.RegionsFailed)
		case len(o.Written) == 0:
			warn.Fprintf(w, "⚠ %s: no polaroids found\n", name)
		default:
			ok.Fprintf(w, "✓ %s: %d polaroids\n", name, len(o.Written))
		}
		polaroids += len(o.Written)
		failedRegions += o.RegionsFailed
	}

	fmt.Fprintln(w)
	summary := ok
	if failedScans > 0 || failedRegions > 0 {
		summary = warn
	}
	summary.Fprintf(w, "%d scans, %d polaroids written", len(outcomes), polaroids)
	if failedRegions > 0 {
		summary.Fprintf(w, ", %d regions failed", failedRegions)
	}
	if failedScans > 0 {
		fail.Fprintf(w, ", %d scans failed", failedScans)
	}
	fmt.Fprintln(w)
}
