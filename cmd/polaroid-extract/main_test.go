package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polaroid-extractor/internal/config"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/pipeline"
	"polaroid-extractor/internal/shutdown"
	"polaroid-extractor/internal/worker"
)

func TestParamsCommandAppliesFlagsOverEnv(t *testing.T) {
	t.Setenv("POLAROID_PARAMS_THRESHOLD_VALUE", "120")
	t.Setenv("POLAROID_PARAMS_PHOTOS_WIDE", "4")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"params", "--photos-wide", "3"})
	require.NoError(t, root.Execute())

	var got models.ExtractionParams
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))

	assert.Equal(t, 120, got.ThresholdValue)
	assert.Equal(t, 3, got.PhotosWide)
	assert.Equal(t, models.DefaultParams().MedianBlurKernel, got.MedianBlurKernel)
}

func TestParamsCommandRejectsInvalidFlag(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"params", "--threshold", "300"})

	err := root.Execute()

	assert.ErrorIs(t, err, models.ErrParameterOutOfRange)
}

// stubEngine returns one crop per request, or fails for scans narrower
// than failBelow.
type stubEngine struct {
	failBelow int
}

func (s stubEngine) Extract(req pipeline.Request, onPreview func(pipeline.Preview)) (*pipeline.Result, error) {
	if req.Width < s.failBelow {
		return nil, models.ErrInvalidImage
	}
	onPreview(pipeline.Preview{Stage: pipeline.PreviewSegmentation, PNG: []byte("preview")})
	return &pipeline.Result{
		Polaroids: []models.ExtractedPolaroid{{Index: 0, PNG: []byte("crop")}},
		Failures:  []*models.RegionError{{Index: 1, Err: errors.New("collapsed")}},
	}, nil
}

func writeTestScan(t *testing.T, path string, w int) {
	t.Helper()
	require.NoError(t, imaging.Save(imaging.New(w, 10, color.NRGBA{A: 255}), path))
}

func testBatch(t *testing.T, cfg config.Config, engine worker.Engine) (*batch, *shutdown.Manager) {
	t.Helper()
	mgr := shutdown.NewManager(logger.Nop())
	probe := worker.WithProbe(func() (string, error) { return "test", nil })
	return newBatch(cfg, logger.Nop(), mgr, engine, probe), mgr
}

func TestBatchWritesCropsAndPreviews(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	previews := filepath.Join(out, "previews")
	writeTestScan(t, filepath.Join(in, "b.png"), 20)
	writeTestScan(t, filepath.Join(in, "a.png"), 20)
	writeTestScan(t, filepath.Join(in, "tiny.png"), 5)

	cfg := config.Config{
		Params: models.DefaultParams(),
		Output: config.OutputConfig{Dir: out, PreviewDir: previews},
		Jobs:   2,
	}
	b, _ := testBatch(t, cfg, stubEngine{failBelow: 10})

	var ticks atomic.Int32
	outcomes := b.run([]string{
		filepath.Join(in, "b.png"),
		filepath.Join(in, "tiny.png"),
		filepath.Join(in, "a.png"),
	}, func() { ticks.Add(1) })

	require.Len(t, outcomes, 3)
	assert.EqualValues(t, 3, ticks.Load())
	assert.Equal(t, filepath.Join(in, "a.png"), outcomes[0].Path)
	assert.Equal(t, []string{filepath.Join(out, "a_polaroid_1.png")}, outcomes[0].Written)
	assert.Equal(t, 1, outcomes[0].RegionsFailed)
	assert.NoError(t, outcomes[1].Err)
	assert.ErrorIs(t, outcomes[2].Err, models.ErrInvalidImage)

	assert.FileExists(t, filepath.Join(previews, "a_segmentation.png"))
	assert.FileExists(t, filepath.Join(out, "b_polaroid_1.png"))
	_, err := os.Stat(filepath.Join(out, "tiny_polaroid_1.png"))
	assert.True(t, os.IsNotExist(err))

	var summary bytes.Buffer
	printSummary(&summary, outcomes)
	assert.Contains(t, summary.String(), "3 scans, 2 polaroids written")
	assert.Contains(t, summary.String(), "1 scans failed")
}

func TestBatchSkipsAfterShutdown(t *testing.T) {
	in := t.TempDir()
	writeTestScan(t, filepath.Join(in, "a.png"), 20)

	cfg := config.Config{
		Params: models.DefaultParams(),
		Output: config.OutputConfig{Dir: t.TempDir()},
		Jobs:   1,
	}
	b, mgr := testBatch(t, cfg, stubEngine{})
	mgr.Shutdown()

	outcomes := b.run([]string{filepath.Join(in, "a.png")}, func() {})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Empty(t, outcomes[0].Written)
}
