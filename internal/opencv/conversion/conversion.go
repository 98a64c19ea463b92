package conversion

import (
	"fmt"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/opencv/memory"
	"polaroid-extractor/internal/opencv/safe"
)

// BytesPerPixel is the channel count of request buffers (RGBA, one byte each).
const BytesPerPixel = 4

// RGBAToBGR copies a packed RGBA buffer into a new 3-channel BGR Mat owned by mgr.
func RGBAToBGR(mgr *memory.Manager, pixels []byte, width, height int, tag string) (*safe.Mat, error) {
	if err := safe.ValidateDimensions(width, height, "RGBA import"); err != nil {
		return nil, err
	}
	if len(pixels) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("buffer length %d does not match %dx%dx%d", len(pixels), width, height, BytesPerPixel)
	}

	rgba, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, pixels)
	if err != nil {
		return nil, fmt.Errorf("wrapping RGBA buffer: %w", err)
	}
	defer rgba.Close()

	dst, err := mgr.GetMat(height, width, gocv.MatTypeCV8UC3, tag)
	if err != nil {
		return nil, err
	}

	gocv.CvtColor(rgba, dst.Ptr(), gocv.ColorRGBAToBGR)
	return dst, nil
}

// EncodePNG compresses a BGR or grayscale Mat. The returned slice is Go-owned.
func EncodePNG(src *safe.Mat) ([]byte, error) {
	if err := safe.ValidateMatForOperation(src, "PNG encode"); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, src.GetMat())
	if err != nil {
		return nil, fmt.Errorf("PNG encode failed: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
