package models

import (
	"polaroid-extractor/internal/geometry"
)

// DetectedRegion is a candidate polaroid in working (resized) coordinates.
// Rect is canonicalized to Width >= Height and Corners follow its vertex order.
type DetectedRegion struct {
	Rect        geometry.RotatedRect
	Corners     [4]geometry.Point
	ContourArea float64
}

// ExtractedPolaroid is one rectified, sharpened crop encoded as PNG.
type ExtractedPolaroid struct {
	Index  int
	Width  int
	Height int
	PNG    []byte
}
