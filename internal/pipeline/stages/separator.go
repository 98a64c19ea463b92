package stages

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

// Separation holds the three masks derived from the grayscale working image.
// All are 8-bit single channel with values 0 or 255.
type Separation struct {
	Opening *safe.Mat
	Seeds   *safe.Mat
	Unknown *safe.Mat
}

func (s *Separation) Close() {
	if s == nil {
		return
	}
	s.Opening.Close()
	s.Seeds.Close()
	s.Unknown.Close()
}

type Separator struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func NewSeparator(memMgr *memory.Manager, log logger.Logger) *Separator {
	return &Separator{memoryManager: memMgr, logger: log}
}

// BinaryCutoff converts an inclusive threshold into OpenCV's strict
// "greater than" cutoff for 8-bit data.
func BinaryCutoff(threshold int) float32 {
	return float32(threshold) - 1
}

func (s *Separator) Process(gray *safe.Mat, params models.ExtractionParams) (sep *Separation, err error) {
	if err := safe.ValidateMatType(gray, gocv.MatTypeCV8UC1, "separate"); err != nil {
		return nil, err
	}

	rows, cols := gray.Rows(), gray.Cols()
	sep = &Separation{}
	defer func() {
		if err != nil {
			sep.Close()
			sep = nil
		}
	}()

	binary, err := s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV8UC1, "binary")
	if err != nil {
		return nil, err
	}
	defer binary.Close()
	gocv.Threshold(gray.GetMat(), binary.Ptr(), BinaryCutoff(params.ThresholdValue), 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect,
		image.Pt(params.StructuringElementSize, params.StructuringElementSize))
	defer kernel.Close()

	eroded, err := s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV8UC1, "eroded")
	if err != nil {
		return nil, err
	}
	defer eroded.Close()
	gocv.Erode(binary.GetMat(), eroded.Ptr(), kernel)

	if sep.Opening, err = s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV8UC1, "opening"); err != nil {
		return nil, err
	}
	gocv.Dilate(eroded.GetMat(), sep.Opening.Ptr(), kernel)

	dist, err := s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV32FC1, "distance")
	if err != nil {
		return nil, err
	}
	defer dist.Close()

	labels, err := s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV32SC1, "distance_labels")
	if err != nil {
		return nil, err
	}
	defer labels.Close()

	gocv.DistanceTransform(sep.Opening.GetMat(), dist.Ptr(), labels.Ptr(), gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)
	gocv.Normalize(dist.GetMat(), dist.Ptr(), 1, 0, gocv.NormInf)

	seedsF, err := s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV32FC1, "seeds_f32")
	if err != nil {
		return nil, err
	}
	defer seedsF.Close()
	gocv.Threshold(dist.GetMat(), seedsF.Ptr(), float32(params.DistanceTransformThreshold), 255, gocv.ThresholdBinary)

	if sep.Seeds, err = s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV8UC1, "seeds"); err != nil {
		return nil, err
	}
	seedsMat := seedsF.GetMat()
	seedsMat.ConvertTo(sep.Seeds.Ptr(), gocv.MatTypeCV8U)

	if sep.Unknown, err = s.memoryManager.GetMat(rows, cols, gocv.MatTypeCV8UC1, "unknown"); err != nil {
		return nil, err
	}
	gocv.Subtract(sep.Opening.GetMat(), sep.Seeds.GetMat(), sep.Unknown.Ptr())

	s.logger.Debug("Separator", "masks ready", map[string]interface{}{
		"threshold":          params.ThresholdValue,
		"structuring":        params.StructuringElementSize,
		"distance_threshold": params.DistanceTransformThreshold,
		"foreground_pixels":  gocv.CountNonZero(sep.Opening.GetMat()),
		"seed_pixels":        gocv.CountNonZero(sep.Seeds.GetMat()),
	})

	if sep.Opening.Empty() || sep.Seeds.Empty() || sep.Unknown.Empty() {
		return nil, fmt.Errorf("separation produced an empty mask")
	}
	return sep, nil
}
