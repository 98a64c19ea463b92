package stages

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"polaroid-extractor/internal/geometry"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

func TestWorkingSize(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, photosWide int
		wantW, wantH           int
	}{
		{"downscale", 2000, 1760, 2, 1000, 880},
		{"upscale", 500, 440, 2, 1000, 880},
		{"rounds height", 3000, 1001, 1, 500, 167},
		{"minimum height", 10000, 1, 1, 500, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, wr, hr := WorkingSize(tt.srcW, tt.srcH, tt.photosWide)

			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.InDelta(t, float64(tt.wantW)/float64(tt.srcW), wr, 1e-12)
			assert.InDelta(t, float64(tt.wantH)/float64(tt.srcH), hr, 1e-12)
		})
	}
}

func TestBinaryCutoffIsInclusive(t *testing.T) {
	assert.Equal(t, float32(99), BinaryCutoff(100))
	assert.Equal(t, float32(-1), BinaryCutoff(0))
	assert.Equal(t, float32(254), BinaryCutoff(255))
}

func TestPrepareMarkers(t *testing.T) {
	markers := []int32{0, 0, 1, 2, 0}
	unknown := []uint8{0, 255, 0, 0, 255}

	PrepareMarkers(markers, unknown)

	assert.Equal(t, []int32{1, 0, 2, 3, 0}, markers)
}

func TestInAreaBandIsClosed(t *testing.T) {
	low, high := models.DefaultParams().AreaBand()

	assert.True(t, InAreaBand(low, low, high))
	assert.True(t, InAreaBand(high, low, high))
	assert.False(t, InAreaBand(low-0.001, low, high))
	assert.False(t, InAreaBand(high+0.001, low, high))
}

func rect(cx, cy, w, h, angle float64) geometry.RotatedRect {
	return geometry.RotatedRect{Center: geometry.Point{X: cx, Y: cy}, Width: w, Height: h, Angle: angle}
}

func TestAcceptRegionsFiltersAndDeduplicates(t *testing.T) {
	low, high := models.DefaultParams().AreaBand()

	candidates := []Candidate{
		{Area: 220000, Rect: rect(300, 300, 440, 500, 0)},
		// inner ring of the same polaroid
		{Area: 200000, Rect: rect(305, 298, 420, 480, 0)},
		{Area: 1000, Rect: rect(900, 300, 30, 30, 0)},
		{Area: 220000, Rect: rect(800, 300, 500, 440, 0)},
		{Area: 500000, Rect: rect(500, 500, 1000, 500, 0)},
	}

	regions := AcceptRegions(candidates, low, high)

	require.Len(t, regions, 2)
	assert.Equal(t, 300.0, regions[0].Rect.Center.X)
	assert.Equal(t, 800.0, regions[1].Rect.Center.X)
	for _, r := range regions {
		assert.GreaterOrEqual(t, r.Rect.Width, r.Rect.Height)
		assert.Equal(t, r.Rect.Corners(), r.Corners)
	}
	assert.Equal(t, 220000.0, regions[0].ContourArea)
}

func TestAcceptRegionsKeepsOverlapOutsideCentre(t *testing.T) {
	low, high := models.DefaultParams().AreaBand()

	// Second centre lies exactly on the first box's edge; the test is strict.
	candidates := []Candidate{
		{Area: 220000, Rect: rect(300, 300, 500, 440, 0)},
		{Area: 220000, Rect: rect(550, 300, 500, 440, 0)},
	}

	assert.Len(t, AcceptRegions(candidates, low, high), 2)
}

func TestPlanRectificationProducesPortrait(t *testing.T) {
	// 440 wide x 500 tall in working space, working image at half scale.
	detected := rect(250, 260, 440, 500, 0).Landscape()
	region := models.DetectedRegion{Rect: detected, Corners: detected.Corners()}

	plan, err := PlanRectification(region, 0.5, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 880, plan.Width)
	assert.Equal(t, 1000, plan.Height)
	assert.LessOrEqual(t, plan.Source[0].Dist(plan.Source[1]), plan.Source[1].Dist(plan.Source[2]))

	target := geometry.EdgeTrimTarget(880, 1000)
	for i := range plan.Source {
		got := plan.Transform.Apply(plan.Source[i])
		assert.InDelta(t, target[i].X, got.X, 1e-6)
		assert.InDelta(t, target[i].Y, got.Y, 1e-6)
	}

	// Upright input stays upright: the top-left source corner maps near the
	// top-left of the canvas.
	tl := plan.Transform.Apply(geometry.Point{X: 60, Y: 20})
	assert.Less(t, tl.X, 0.0)
	assert.Less(t, tl.Y, 0.0)
}

func TestPlanRectificationRejectsCollapsedRegion(t *testing.T) {
	pt := geometry.Point{X: 10, Y: 10}
	region := models.DetectedRegion{Corners: [4]geometry.Point{pt, pt, pt, pt}}

	_, err := PlanRectification(region, 1, 1)

	assert.ErrorIs(t, err, geometry.ErrDegenerateQuad)
}

func newTestManager(t *testing.T) *memory.Manager {
	t.Helper()
	mgr := memory.NewManager(logger.Nop())
	t.Cleanup(func() { mgr.Cleanup() })
	return mgr
}

func solidBGR(t *testing.T, mgr *memory.Manager, w, h int, c color.RGBA) *safe.Mat {
	t.Helper()
	m, err := mgr.Adopt(gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0), h, w, gocv.MatTypeCV8UC3), "fixture")
	require.NoError(t, err)
	return m
}

func TestPreprocessorResizesToWorkingWidth(t *testing.T) {
	mgr := newTestManager(t)
	src := solidBGR(t, mgr, 2000, 1500, color.RGBA{R: 200, G: 200, B: 200})
	params := models.DefaultParams()

	pre, err := NewPreprocessor(mgr, logger.Nop()).Process(src, params)
	require.NoError(t, err)
	defer pre.Close()

	assert.Equal(t, 1000, pre.Working.Cols())
	assert.Equal(t, 750, pre.Working.Rows())
	assert.Equal(t, 1, pre.Gray.Channels())
	assert.InDelta(t, 0.5, pre.WidthRatio, 1e-12)
	assert.InDelta(t, 0.5, pre.HeightRatio, 1e-12)
}

func TestSeparatorTreatsThresholdAsForeground(t *testing.T) {
	params := models.DefaultParams()

	tests := []struct {
		name  string
		value int
		want  int
	}{
		{"at threshold", params.ThresholdValue, 160 * 160},
		{"below threshold", params.ThresholdValue - 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newTestManager(t)
			gray, err := mgr.GetMat(200, 200, gocv.MatTypeCV8UC1, "gray")
			require.NoError(t, err)
			gray.Ptr().SetTo(gocv.NewScalar(0, 0, 0, 0))
			gocv.Rectangle(gray.Ptr(), image.Rect(20, 20, 180, 180), color.RGBA{R: uint8(tt.value), G: uint8(tt.value), B: uint8(tt.value), A: 255}, -1)

			sep, err := NewSeparator(mgr, logger.Nop()).Process(gray, params)
			require.NoError(t, err)
			defer sep.Close()

			assert.Equal(t, tt.want, gocv.CountNonZero(sep.Opening.GetMat()))
			if tt.want > 0 {
				assert.Positive(t, gocv.CountNonZero(sep.Seeds.GetMat()))
				assert.Equal(t, tt.want, gocv.CountNonZero(sep.Seeds.GetMat())+gocv.CountNonZero(sep.Unknown.GetMat()))
			}
		})
	}
}

func TestSegmentAndExtractSinglePolaroid(t *testing.T) {
	mgr := newTestManager(t)
	params := models.DefaultParams()

	working := solidBGR(t, mgr, 1000, 880, color.RGBA{})
	gocv.Rectangle(working.Ptr(), image.Rect(280, 190, 720, 690), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	gray, err := mgr.GetMat(880, 1000, gocv.MatTypeCV8UC1, "gray")
	require.NoError(t, err)
	gocv.CvtColor(working.GetMat(), gray.Ptr(), gocv.ColorBGRToGray)

	sep, err := NewSeparator(mgr, logger.Nop()).Process(gray, params)
	require.NoError(t, err)
	defer sep.Close()

	segmenter := NewSegmenter(mgr, logger.Nop())
	seg, err := segmenter.Process(working, sep)
	require.NoError(t, err)
	defer seg.Close()
	assert.Equal(t, 1, seg.Components)

	overlay, err := segmenter.BoundaryOverlay(working, seg)
	require.NoError(t, err)
	defer overlay.Close()

	extraction, err := NewRegionExtractor(mgr, logger.Nop()).Process(seg.Markers, params, overlay)
	require.NoError(t, err)

	require.Len(t, extraction.Regions, 1)
	region := extraction.Regions[0]
	assert.InDelta(t, 500, region.Rect.Center.X, 3)
	assert.InDelta(t, 440, region.Rect.Center.Y, 3)
	assert.InDelta(t, 500, region.Rect.Width, 6)
	assert.InDelta(t, 440, region.Rect.Height, 6)
}

func TestRectifierEmitsPortraitPNG(t *testing.T) {
	mgr := newTestManager(t)

	original := solidBGR(t, mgr, 2000, 1760, color.RGBA{})
	gocv.Rectangle(original.Ptr(), image.Rect(560, 380, 1440, 1380), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	detected := rect(500, 440, 440, 500, 0).Landscape()
	region := models.DetectedRegion{Rect: detected, Corners: detected.Corners()}

	out, err := NewRectifier(mgr, logger.Nop()).Rectify(original, region, 0.5, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 880, out.Width)
	assert.Equal(t, 1000, out.Height)
	require.NotEmpty(t, out.PNG)

	decoded, err := gocv.IMDecode(out.PNG, gocv.IMReadColor)
	require.NoError(t, err)
	defer decoded.Close()
	assert.Equal(t, 880, decoded.Cols())
	assert.Equal(t, 1000, decoded.Rows())
	assert.Equal(t, int64(1), mgr.GetStats().ActiveMats, "only the fixture stays open")
}
