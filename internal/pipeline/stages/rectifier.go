package stages

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/geometry"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/conversion"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

// sharpenKernel is a 3x3 Laplacian-style unsharp kernel.
var sharpenKernel = [3][3]float32{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
}

// Plan describes how one region maps onto its output canvas.
type Plan struct {
	Source    [4]geometry.Point // original-resolution corners, short side first
	Width     int
	Height    int
	Transform geometry.Homography
}

type Rectifier struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func NewRectifier(memMgr *memory.Manager, log logger.Logger) *Rectifier {
	return &Rectifier{memoryManager: memMgr, logger: log}
}

// PlanRectification rescales a working-resolution region to the original
// image and solves the edge-trimmed perspective mapping onto a portrait canvas.
func PlanRectification(region models.DetectedRegion, widthRatio, heightRatio float64) (Plan, error) {
	corners := geometry.ScalePoints(region.Corners, widthRatio, heightRatio)
	rect := geometry.MinAreaRect(corners[:]).Portrait()

	width := int(math.Round(rect.Width))
	height := int(math.Round(rect.Height))
	if width < 1 || height < 1 {
		return Plan{}, fmt.Errorf("%w: output size %dx%d", geometry.ErrDegenerateQuad, width, height)
	}

	source := geometry.ShortSideFirst(corners)
	transform, err := geometry.PerspectiveTransform(source, geometry.EdgeTrimTarget(float64(width), float64(height)))
	if err != nil {
		return Plan{}, err
	}

	return Plan{Source: source, Width: width, Height: height, Transform: transform}, nil
}

// Rectify warps one region out of the original BGR image, sharpens it and
// encodes it as PNG.
func (r *Rectifier) Rectify(original *safe.Mat, region models.DetectedRegion, widthRatio, heightRatio float64) (models.ExtractedPolaroid, error) {
	if err := safe.ValidateMatType(original, gocv.MatTypeCV8UC3, "rectify"); err != nil {
		return models.ExtractedPolaroid{}, err
	}

	plan, err := PlanRectification(region, widthRatio, heightRatio)
	if err != nil {
		return models.ExtractedPolaroid{}, err
	}

	homography, err := r.homographyMat(plan.Transform)
	if err != nil {
		return models.ExtractedPolaroid{}, err
	}
	defer homography.Close()

	warped, err := r.memoryManager.GetMat(plan.Height, plan.Width, gocv.MatTypeCV8UC3, "warped")
	if err != nil {
		return models.ExtractedPolaroid{}, err
	}
	defer warped.Close()

	gocv.WarpPerspective(original.GetMat(), warped.Ptr(), homography.GetMat(), image.Pt(plan.Width, plan.Height))

	kernel, err := r.sharpenMat()
	if err != nil {
		return models.ExtractedPolaroid{}, err
	}
	defer kernel.Close()

	sharpened, err := r.memoryManager.GetMat(plan.Height, plan.Width, gocv.MatTypeCV8UC3, "sharpened")
	if err != nil {
		return models.ExtractedPolaroid{}, err
	}
	defer sharpened.Close()

	gocv.Filter2D(warped.GetMat(), sharpened.Ptr(), gocv.MatType(-1), kernel.GetMat(), image.Pt(-1, -1), 0, gocv.BorderDefault)

	png, err := conversion.EncodePNG(sharpened)
	if err != nil {
		return models.ExtractedPolaroid{}, err
	}

	r.logger.Debug("Rectifier", "region rectified", map[string]interface{}{
		"width":     plan.Width,
		"height":    plan.Height,
		"png_bytes": len(png),
	})

	return models.ExtractedPolaroid{Width: plan.Width, Height: plan.Height, PNG: png}, nil
}

func (r *Rectifier) homographyMat(h geometry.Homography) (*safe.Mat, error) {
	m, err := r.memoryManager.GetMat(3, 3, gocv.MatTypeCV64FC1, "homography")
	if err != nil {
		return nil, err
	}
	mat := m.GetMat()
	for i, v := range h {
		mat.SetDoubleAt(i/3, i%3, v)
	}
	return m, nil
}

func (r *Rectifier) sharpenMat() (*safe.Mat, error) {
	m, err := r.memoryManager.GetMat(3, 3, gocv.MatTypeCV32FC1, "sharpen_kernel")
	if err != nil {
		return nil, err
	}
	mat := m.GetMat()
	for row := range sharpenKernel {
		for col, v := range sharpenKernel[row] {
			mat.SetFloatAt(row, col, v)
		}
	}
	return m, nil
}
