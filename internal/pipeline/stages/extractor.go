package stages

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/geometry"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

var contourColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

const contourThickness = 2

// Candidate is a contour that has already been reduced to its area and
// minimum-area rectangle.
type Candidate struct {
	Area float64
	Rect geometry.RotatedRect
}

// Extraction lists accepted regions in contour discovery order.
type Extraction struct {
	Regions       []models.DetectedRegion
	ContoursFound int
}

type RegionExtractor struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func NewRegionExtractor(memMgr *memory.Manager, log logger.Logger) *RegionExtractor {
	return &RegionExtractor{memoryManager: memMgr, logger: log}
}

// InAreaBand reports whether area lies inside the closed interval [low, high].
func InAreaBand(area, low, high float64) bool {
	return area >= low && area <= high
}

// AcceptRegions filters candidates by area and drops any whose centre falls
// inside a region accepted before it.
func AcceptRegions(candidates []Candidate, low, high float64) []models.DetectedRegion {
	var accepted []models.DetectedRegion
	for _, c := range candidates {
		if !InAreaBand(c.Area, low, high) {
			continue
		}
		rect := c.Rect.Landscape()

		duplicate := false
		for _, prev := range accepted {
			if prev.Rect.HalfExtentContains(rect.Center) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		accepted = append(accepted, models.DetectedRegion{
			Rect:        rect,
			Corners:     rect.Corners(),
			ContourArea: c.Area,
		})
	}
	return accepted
}

// Process traces region contours in the watershed label map. When overlay
// is non-nil the corners of every accepted region are drawn onto it.
func (e *RegionExtractor) Process(markers *safe.Mat, params models.ExtractionParams, overlay *safe.Mat) (Extraction, error) {
	if err := safe.ValidateMatType(markers, gocv.MatTypeCV32SC1, "find contours"); err != nil {
		return Extraction{}, err
	}

	contours := gocv.FindContours(markers.GetMat(), gocv.RetrievalCComp, gocv.ChainApproxSimple)
	defer contours.Close()

	low, high := params.AreaBand()
	candidates := make([]Candidate, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if !InAreaBand(area, low, high) {
			continue
		}
		candidates = append(candidates, Candidate{Area: area, Rect: fromRotatedRect2f(gocv.MinAreaRect2f(contour))})
	}

	result := Extraction{
		Regions:       AcceptRegions(candidates, low, high),
		ContoursFound: contours.Size(),
	}

	if overlay != nil {
		if err := safe.ValidateMatForOperation(overlay, "contour overlay"); err != nil {
			return result, err
		}
		for _, region := range result.Regions {
			drawQuad(overlay, region.Corners)
		}
	}

	e.logger.Debug("RegionExtractor", "regions selected", map[string]interface{}{
		"contours":   result.ContoursFound,
		"in_band":    len(candidates),
		"accepted":   len(result.Regions),
		"area_low":   low,
		"area_high":  high,
		"duplicates": len(candidates) - len(result.Regions),
	})

	if len(result.Regions) == 0 && result.ContoursFound > 0 {
		e.logger.Info("RegionExtractor", "no contour matched the expected polaroid area", map[string]interface{}{
			"contours": result.ContoursFound,
		})
	}

	return result, nil
}

func fromRotatedRect2f(r gocv.RotatedRect2f) geometry.RotatedRect {
	return geometry.RotatedRect{
		Center: geometry.Point{X: float64(r.Center.X), Y: float64(r.Center.Y)},
		Width:  float64(r.Width),
		Height: float64(r.Height),
		Angle:  float64(r.Angle),
	}
}

func drawQuad(overlay *safe.Mat, corners [4]geometry.Point) {
	for i := range corners {
		from := toImagePoint(corners[i])
		to := toImagePoint(corners[(i+1)%len(corners)])
		gocv.Line(overlay.Ptr(), from, to, contourColor, contourThickness)
	}
}

func toImagePoint(p geometry.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
