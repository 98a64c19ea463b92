package stages

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

// Preprocessed is the working-resolution copy of a scan. Ratios are
// working/original per axis; dividing a working coordinate by them yields
// the original coordinate.
type Preprocessed struct {
	Working     *safe.Mat // blurred BGR
	Gray        *safe.Mat
	WidthRatio  float64
	HeightRatio float64
}

func (p *Preprocessed) Close() {
	if p == nil {
		return
	}
	p.Working.Close()
	p.Gray.Close()
}

type Preprocessor struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func NewPreprocessor(memMgr *memory.Manager, log logger.Logger) *Preprocessor {
	return &Preprocessor{memoryManager: memMgr, logger: log}
}

// WorkingSize scales the source so its width is photosWide detection units,
// keeping the aspect ratio.
func WorkingSize(srcWidth, srcHeight, photosWide int) (width, height int, widthRatio, heightRatio float64) {
	width = models.DetectionUnitWidth * photosWide
	height = int(math.Round(float64(width) / float64(srcWidth) * float64(srcHeight)))
	if height < 1 {
		height = 1
	}
	return width, height, float64(width) / float64(srcWidth), float64(height) / float64(srcHeight)
}

func (p *Preprocessor) Process(original *safe.Mat, params models.ExtractionParams) (*Preprocessed, error) {
	if original == nil || original.Rows() == 0 || original.Cols() == 0 {
		return nil, fmt.Errorf("%w: source has zero width or height", models.ErrInvalidImage)
	}
	if err := safe.ValidateMatType(original, gocv.MatTypeCV8UC3, "preprocess"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidImage, err)
	}

	width, height, widthRatio, heightRatio := WorkingSize(original.Cols(), original.Rows(), params.PhotosWide)

	kernel := params.EffectiveMedianKernel()
	if kernel != params.MedianBlurKernel {
		p.logger.Warning("Preprocessor", "even median kernel rounded up", map[string]interface{}{
			"requested": params.MedianBlurKernel,
			"used":      kernel,
		})
	}

	resized, err := p.memoryManager.GetMat(height, width, gocv.MatTypeCV8UC3, "resized")
	if err != nil {
		return nil, err
	}
	defer resized.Close()

	gocv.Resize(original.GetMat(), resized.Ptr(), image.Pt(width, height), 0, 0, gocv.InterpolationArea)

	working, err := p.memoryManager.GetMat(height, width, gocv.MatTypeCV8UC3, "working")
	if err != nil {
		return nil, err
	}
	gocv.MedianBlur(resized.GetMat(), working.Ptr(), kernel)

	gray, err := p.memoryManager.GetMat(height, width, gocv.MatTypeCV8UC1, "gray")
	if err != nil {
		working.Close()
		return nil, err
	}
	gocv.CvtColor(working.GetMat(), gray.Ptr(), gocv.ColorBGRToGray)

	p.logger.Debug("Preprocessor", "working image ready", map[string]interface{}{
		"original_size": fmt.Sprintf("%dx%d", original.Cols(), original.Rows()),
		"working_size":  fmt.Sprintf("%dx%d", width, height),
		"width_ratio":   widthRatio,
		"height_ratio":  heightRatio,
		"median_kernel": kernel,
	})

	return &Preprocessed{
		Working:     working,
		Gray:        gray,
		WidthRatio:  widthRatio,
		HeightRatio: heightRatio,
	}, nil
}
