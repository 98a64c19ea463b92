// Package geometry holds the value-typed shapes that travel between pipeline
// stages. Everything here is plain data with copy semantics.
package geometry

import (
	"math"
)

// Point is a sub-pixel image coordinate.
type Point struct {
	X float64
	Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// RotatedRect mirrors OpenCV's RotatedRect: centre, size and angle in degrees.
type RotatedRect struct {
	Center Point
	Width  float64
	Height float64
	Angle  float64
}

func (r RotatedRect) Area() float64 {
	return r.Width * r.Height
}

// Landscape returns r with width >= height, rotating the angle by 90 degrees
// when the sides are swapped. The rectangle covers the same pixels.
func (r RotatedRect) Landscape() RotatedRect {
	if r.Width < r.Height {
		r.Angle += 90
		r.Width, r.Height = r.Height, r.Width
	}
	return r
}

// Portrait returns r with width <= height.
func (r RotatedRect) Portrait() RotatedRect {
	if r.Width > r.Height {
		r.Angle += 90
		r.Width, r.Height = r.Height, r.Width
	}
	return r
}

// Corners returns the four vertices in OpenCV RotatedRect::points order:
// bottom-left, top-left, top-right, bottom-right of the unrotated box.
func (r RotatedRect) Corners() [4]Point {
	angle := r.Angle * math.Pi / 180
	b := math.Cos(angle) * 0.5
	a := math.Sin(angle) * 0.5

	var pts [4]Point
	pts[0] = Point{
		X: r.Center.X - a*r.Height - b*r.Width,
		Y: r.Center.Y + b*r.Height - a*r.Width,
	}
	pts[1] = Point{
		X: r.Center.X + a*r.Height - b*r.Width,
		Y: r.Center.Y - b*r.Height - a*r.Width,
	}
	pts[2] = Point{X: 2*r.Center.X - pts[0].X, Y: 2*r.Center.Y - pts[0].Y}
	pts[3] = Point{X: 2*r.Center.X - pts[1].X, Y: 2*r.Center.Y - pts[1].Y}
	return pts
}

// Scale divides every coordinate and extent by the per-axis ratios.
// Width is scaled by the x ratio and height by the y ratio.
func (r RotatedRect) Scale(widthRatio, heightRatio float64) RotatedRect {
	return RotatedRect{
		Center: Point{X: r.Center.X / widthRatio, Y: r.Center.Y / heightRatio},
		Width:  r.Width / widthRatio,
		Height: r.Height / heightRatio,
		Angle:  r.Angle,
	}
}

// HalfExtentContains reports whether p lies strictly inside the axis-aligned
// box of half-width and half-height around r's centre. The rotation is ignored.
func (r RotatedRect) HalfExtentContains(p Point) bool {
	return p.X > r.Center.X-r.Width/2 &&
		p.X < r.Center.X+r.Width/2 &&
		p.Y > r.Center.Y-r.Height/2 &&
		p.Y < r.Center.Y+r.Height/2
}

// ScalePoints divides each point by the per-axis ratios.
func ScalePoints(pts [4]Point, widthRatio, heightRatio float64) [4]Point {
	var out [4]Point
	for i, p := range pts {
		out[i] = Point{X: p.X / widthRatio, Y: p.Y / heightRatio}
	}
	return out
}

// ShortSideFirst rotates the corner cycle so that the edge c0->c1 is not longer
// than c1->c2. The winding is preserved.
func ShortSideFirst(pts [4]Point) [4]Point {
	if pts[0].Dist(pts[1]) <= pts[1].Dist(pts[2]) {
		return pts
	}
	return [4]Point{pts[1], pts[2], pts[3], pts[0]}
}

// QuadArea returns the absolute shoelace area of the polygon c0..c3.
func QuadArea(pts [4]Point) float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// MinAreaRect returns the smallest rotated rectangle enclosing a convex
// polygon given in boundary order. Width runs along the chosen edge.
func MinAreaRect(pts []Point) RotatedRect {
	var best RotatedRect
	bestArea := math.Inf(1)

	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		length := p.Dist(q)
		if length == 0 {
			continue
		}
		ux, uy := (q.X-p.X)/length, (q.Y-p.Y)/length

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, r := range pts {
			u := r.X*ux + r.Y*uy
			v := -r.X*uy + r.Y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}

		width, height := maxU-minU, maxV-minV
		if width*height >= bestArea {
			continue
		}
		bestArea = width * height
		cu, cv := (minU+maxU)/2, (minV+maxV)/2
		best = RotatedRect{
			Center: Point{X: cu*ux - cv*uy, Y: cu*uy + cv*ux},
			Width:  width,
			Height: height,
			Angle:  math.Atan2(uy, ux) * 180 / math.Pi,
		}
	}
	return best
}
