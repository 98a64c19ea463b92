package stages

import (
	"fmt"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

// BoundaryLabel is the watershed marker value for pixels between basins.
const BoundaryLabel = -1

// Segmentation is the watershed label map. Background is 1, seed components
// are 2..Components+1, boundaries are BoundaryLabel.
type Segmentation struct {
	Markers    *safe.Mat // CV_32S
	Components int
}

func (s *Segmentation) Close() {
	if s == nil {
		return
	}
	s.Markers.Close()
}

type Segmenter struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func NewSegmenter(memMgr *memory.Manager, log logger.Logger) *Segmenter {
	return &Segmenter{memoryManager: memMgr, logger: log}
}

// PrepareMarkers shifts component labels up by one so background becomes 1
// and clears pixels flagged in unknown so watershed can claim them.
func PrepareMarkers(markers []int32, unknown []uint8) {
	for i := range markers {
		markers[i]++
		if unknown[i] == 255 {
			markers[i] = 0
		}
	}
}

func (s *Segmenter) Process(working *safe.Mat, sep *Separation) (*Segmentation, error) {
	if err := safe.ValidateMatType(working, gocv.MatTypeCV8UC3, "watershed"); err != nil {
		return nil, err
	}
	if err := safe.ValidateSameSize(working, sep.Seeds, "watershed"); err != nil {
		return nil, err
	}

	markers, err := s.memoryManager.GetMat(working.Rows(), working.Cols(), gocv.MatTypeCV32SC1, "markers")
	if err != nil {
		return nil, err
	}

	labels := gocv.ConnectedComponents(sep.Seeds.GetMat(), markers.Ptr())
	components := labels - 1

	markerData, err := markers.Ptr().DataPtrInt32()
	if err != nil {
		markers.Close()
		return nil, fmt.Errorf("reading marker labels: %w", err)
	}
	unknownData, err := sep.Unknown.Ptr().DataPtrUint8()
	if err != nil {
		markers.Close()
		return nil, fmt.Errorf("reading unknown mask: %w", err)
	}
	PrepareMarkers(markerData, unknownData)

	gocv.Watershed(working.GetMat(), markers.Ptr())

	s.logger.Debug("Segmenter", "watershed complete", map[string]interface{}{
		"seed_components": components,
	})

	return &Segmentation{Markers: markers, Components: components}, nil
}

// BoundaryOverlay copies the working image and paints watershed boundaries red.
func (s *Segmenter) BoundaryOverlay(working *safe.Mat, seg *Segmentation) (*safe.Mat, error) {
	if err := safe.ValidateSameSize(working, seg.Markers, "boundary overlay"); err != nil {
		return nil, err
	}

	overlay, err := working.Clone("overlay")
	if err != nil {
		return nil, err
	}
	s.memoryManager.Register(overlay)

	pixels, err := overlay.Ptr().DataPtrUint8()
	if err != nil {
		overlay.Close()
		return nil, fmt.Errorf("reading overlay pixels: %w", err)
	}
	markerData, err := seg.Markers.Ptr().DataPtrInt32()
	if err != nil {
		overlay.Close()
		return nil, fmt.Errorf("reading marker labels: %w", err)
	}

	for i, label := range markerData {
		if label == BoundaryLabel {
			pixels[i*3] = 0
			pixels[i*3+1] = 0
			pixels[i*3+2] = 255
		}
	}
	return overlay, nil
}
