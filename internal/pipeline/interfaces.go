package pipeline

import (
	"fmt"

	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/conversion"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

// Preview stage names.
const (
	PreviewSegmentation = "segmentation"
	PreviewContours     = "contours"
)

// Request is one decoded scan: packed RGBA, one byte per channel.
type Request struct {
	Pixels []byte
	Width  int
	Height int
	Params models.ExtractionParams
}

// Validate checks the buffer and parameters. It allocates nothing.
func (r Request) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", models.ErrInvalidImage, r.Width, r.Height)
	}
	if r.Width > safe.MaxDimension || r.Height > safe.MaxDimension {
		return fmt.Errorf("%w: dimensions %dx%d exceed %d", models.ErrInvalidImage, r.Width, r.Height, safe.MaxDimension)
	}
	if want := r.Width * r.Height * conversion.BytesPerPixel; len(r.Pixels) != want {
		return fmt.Errorf("%w: buffer has %d bytes, want %d", models.ErrInvalidImage, len(r.Pixels), want)
	}
	return r.Params.Validate()
}

// Preview is an advisory PNG snapshot emitted mid-run.
type Preview struct {
	Stage string
	PNG   []byte
}

// Result holds one run's output. Polaroids and Failures together account for
// every entry in Regions.
type Result struct {
	Polaroids []models.ExtractedPolaroid
	Regions   []models.DetectedRegion
	Failures  []*models.RegionError
	Report    Report
}

type runOptions struct {
	preview       func(Preview)
	memoryManager *memory.Manager
}

type Option func(*runOptions)

// WithPreview registers a callback for the segmentation and contour previews.
// Without it no overlay is rendered.
func WithPreview(fn func(Preview)) Option {
	return func(o *runOptions) {
		o.preview = fn
	}
}

// WithMemoryManager runs against mgr instead of a fresh manager, so callers
// can inspect allocation stats afterwards. The run still cleans it up.
func WithMemoryManager(mgr *memory.Manager) Option {
	return func(o *runOptions) {
		o.memoryManager = mgr
	}
}
