package pipeline

import (
	"fmt"
	"runtime/debug"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/debug/timing"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/conversion"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
	"polaroid-extractor/internal/pipeline/stages"
)

// Extractor runs the five detection and rectification stages over one scan
// at a time. It holds no per-run state and may be reused.
type Extractor struct {
	logger logger.Logger
}

func NewExtractor(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{logger: log}
}

// ProbeRuntime checks that OpenCV can allocate and release a Mat and returns
// its version string.
func ProbeRuntime() (version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", models.ErrRuntimeUnavailable, r)
		}
	}()

	mat, err := safe.NewMat(1, 1, gocv.MatTypeCV8UC3)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrRuntimeUnavailable, err)
	}
	mat.Close()

	return gocv.OpenCVVersion(), nil
}

// Extract is Run with an optional preview callback.
func (e *Extractor) Extract(req Request, onPreview func(Preview)) (*Result, error) {
	if onPreview == nil {
		return e.Run(req)
	}
	return e.Run(req, WithPreview(onPreview))
}

// Run validates req and extracts every polaroid found in it. Validation
// failures return before any Mat is allocated. A failure rectifying one
// region is recorded in Result.Failures and the remaining regions proceed.
func (e *Extractor) Run(req Request, opts ...Option) (result *Result, err error) {
	var cfg runOptions
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := req.Validate(); err != nil {
		e.logger.Warning("Extractor", "request rejected", map[string]interface{}{
			"width":  req.Width,
			"height": req.Height,
			"bytes":  len(req.Pixels),
			"error":  err.Error(),
		})
		return nil, err
	}

	memMgr := cfg.memoryManager
	if memMgr == nil {
		memMgr = memory.NewManager(e.logger)
	}
	tracker := timing.NewTracker()

	defer func() {
		leaked := memMgr.Cleanup()
		if result == nil {
			return
		}
		result.Report.MatsLeaked = leaked
		result.Report.MatsAllocated = memMgr.GetStats().Allocations
		result.Report.addTimings(tracker)
		e.logger.Info("Extractor", "run complete", result.Report.fields())
	}()

	params := req.Params

	ctx := tracker.StartTiming("decode")
	original, err := conversion.RGBAToBGR(memMgr, req.Pixels, req.Width, req.Height, "original")
	tracker.EndTiming(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidImage, err)
	}
	defer original.Close()

	ctx = tracker.StartTiming("preprocess")
	pre, err := stages.NewPreprocessor(memMgr, e.logger).Process(original, params)
	tracker.EndTiming(ctx)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	defer pre.Close()

	ctx = tracker.StartTiming("separate")
	sep, err := stages.NewSeparator(memMgr, e.logger).Process(pre.Gray, params)
	tracker.EndTiming(ctx)
	if err != nil {
		return nil, fmt.Errorf("separate: %w", err)
	}
	defer sep.Close()

	segmenter := stages.NewSegmenter(memMgr, e.logger)
	ctx = tracker.StartTiming("segment")
	seg, err := segmenter.Process(pre.Working, sep)
	tracker.EndTiming(ctx)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	defer seg.Close()
	sep.Close()

	var overlay *safe.Mat
	if cfg.preview != nil {
		overlay, err = segmenter.BoundaryOverlay(pre.Working, seg)
		if err != nil {
			e.logger.Warning("Extractor", "segmentation preview skipped", map[string]interface{}{"error": err.Error()})
			overlay = nil
		} else {
			defer overlay.Close()
			e.emitPreview(cfg.preview, PreviewSegmentation, overlay)
		}
	}

	ctx = tracker.StartTiming("extract")
	extraction, err := stages.NewRegionExtractor(memMgr, e.logger).Process(seg.Markers, params, overlay)
	tracker.EndTiming(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract regions: %w", err)
	}
	if overlay != nil {
		e.emitPreview(cfg.preview, PreviewContours, overlay)
		overlay.Close()
	}

	result = &Result{
		Regions: extraction.Regions,
		Report: Report{
			WorkingWidth:    pre.Working.Cols(),
			WorkingHeight:   pre.Working.Rows(),
			WidthRatio:      pre.WidthRatio,
			HeightRatio:     pre.HeightRatio,
			SeedComponents:  seg.Components,
			ContoursFound:   extraction.ContoursFound,
			RegionsAccepted: len(extraction.Regions),
		},
	}
	result.Report.MeanArea, result.Report.AreaStdDev = AreaSpread(extraction.Regions)

	// Detection buffers are no longer needed; only the original is read from here on.
	seg.Close()
	pre.Close()

	rectifier := stages.NewRectifier(memMgr, e.logger)
	ctx = tracker.StartTiming("rectify")
	for i, region := range extraction.Regions {
		polaroid, err := e.rectifyRegion(rectifier, original, region, result.Report.WidthRatio, result.Report.HeightRatio)
		if err != nil {
			regionErr := &models.RegionError{Index: i, Err: err}
			e.logger.Error("Extractor", regionErr, map[string]interface{}{
				"region": i,
				"center": []float64{region.Rect.Center.X, region.Rect.Center.Y},
			})
			result.Failures = append(result.Failures, regionErr)
			continue
		}
		polaroid.Index = i
		result.Polaroids = append(result.Polaroids, polaroid)
	}
	tracker.EndTiming(ctx)
	result.Report.RegionsFailed = len(result.Failures)

	return result, nil
}

func (e *Extractor) rectifyRegion(r *stages.Rectifier, original *safe.Mat, region models.DetectedRegion, widthRatio, heightRatio float64) (polaroid models.ExtractedPolaroid, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Debug("Extractor", "rectifier panic", map[string]interface{}{"stack": string(debug.Stack())})
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.Rectify(original, region, widthRatio, heightRatio)
}

func (e *Extractor) emitPreview(fn func(Preview), stage string, mat *safe.Mat) {
	png, err := conversion.EncodePNG(mat)
	if err != nil {
		e.logger.Warning("Extractor", "preview encoding failed", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
		return
	}
	fn(Preview{Stage: stage, PNG: png})
}
