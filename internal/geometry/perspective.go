package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// EdgeBuffer is the fraction of each side trimmed away during rectification.
const EdgeBuffer = 0.01

var ErrDegenerateQuad = errors.New("degenerate quadrilateral")

// Homography is a row-major 3x3 projective transform with H[8] == 1.
type Homography [9]float64

// PerspectiveTransform solves the homography mapping src[i] onto dst[i],
// the same system OpenCV's getPerspectiveTransform builds.
func PerspectiveTransform(src, dst [4]Point) (Homography, error) {
	if QuadArea(src) < 1 || QuadArea(dst) < 1 {
		return Homography{}, fmt.Errorf("%w: area below one pixel", ErrDegenerateQuad)
	}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(i, []float64{x, y, 1, 0, 0, 0, -x * u, -y * u})
		a.SetRow(i+4, []float64{0, 0, 0, x, y, 1, -x * v, -y * v})
		b.SetVec(i, u)
		b.SetVec(i+4, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}

	var out Homography
	for i := 0; i < 8; i++ {
		out[i] = h.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return Homography{}, fmt.Errorf("%w: non-finite coefficient", ErrDegenerateQuad)
		}
	}
	out[8] = 1
	return out, nil
}

// Apply maps p through the transform.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// Inverse returns the transform mapping target coordinates back to the source.
func (h Homography) Inverse() (Homography, error) {
	m := mat.NewDense(3, 3, h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}

	scale := inv.At(2, 2)
	if scale == 0 {
		return Homography{}, fmt.Errorf("%w: projective scale is zero", ErrDegenerateQuad)
	}

	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c) / scale
		}
	}
	return out, nil
}

// EdgeTrimTarget returns the destination quad for a width x height crop whose
// corners sit EdgeBuffer outside the canvas, so the visible crop is inset
// from the detected border on every edge.
func EdgeTrimTarget(width, height float64) [4]Point {
	wb := width * EdgeBuffer
	hb := height * EdgeBuffer
	return [4]Point{
		{X: -wb, Y: -hb},
		{X: width + wb, Y: -hb},
		{X: width + wb, Y: height + hb},
		{X: -wb, Y: height + hb},
	}
}
