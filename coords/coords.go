// Package coords converts between the three coordinate spaces of the
// placement engine: pointer/screen space (browser client coordinates),
// container space (pixels relative to the viewport hosting the rendered
// page) and document space (the page's native units at render scale 1).
package coords

import (
	"errors"
	"math"

	"github.com/docsops/signflow/geom"
)

// Matrix is a 2D affine transform in the order [a b c d e f], mapping
// (x, y) to (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Translate returns a translation by (tx, ty).
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Scale returns a scale by (sx, sy).
func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Multiply composes m with o so that applying the result is equivalent to
// applying m first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Transform applies the matrix to a point.
func (m Matrix) Transform(p geom.Point) geom.Point {
	return geom.Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// ErrSingular is returned when a matrix cannot be inverted.
var ErrSingular = errors.New("coords: matrix singular")

// Inverse returns the inverse transform.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Space captures the geometry of one rendered page: the render scale and the
// two offsets needed to move between pointer, container and document space.
// A Space is immutable; build a new one whenever the page or viewport changes.
type Space struct {
	// Scale is the render scale (document units to canvas pixels). Must be > 0.
	Scale float64
	// CanvasOrigin is the bitmap's offset within the container, accounting
	// for centering and padding.
	CanvasOrigin geom.Point
	// ContainerOrigin is the container's offset in pointer/client coordinates.
	ContainerOrigin geom.Point
}

// toScreen maps document space to container space: screen = doc*scale + canvasOrigin.
func (s Space) toScreen() Matrix {
	return Scale(s.Scale, s.Scale).Multiply(Translate(s.CanvasOrigin.X, s.CanvasOrigin.Y))
}

// ToContainer converts a pointer/client position to container space.
func (s Space) ToContainer(client geom.Point) geom.Point {
	return client.Sub(s.ContainerOrigin)
}

// ToCanvas converts a container position to canvas-relative space.
func (s Space) ToCanvas(container geom.Point) geom.Point {
	return container.Sub(s.CanvasOrigin)
}

// ToDocument converts a canvas-relative position to document space.
func (s Space) ToDocument(canvas geom.Point) geom.Point {
	return geom.Point{X: canvas.X / s.Scale, Y: canvas.Y / s.Scale}
}

// DocumentRect converts a container-space rectangle to document space.
func (s Space) DocumentRect(screen geom.Rect) geom.Rect {
	inv, err := s.toScreen().Inverse()
	if err != nil {
		// Scale <= 0 is a programming error; return a zero rect rather than
		// propagating NaNs into the placement.
		return geom.Rect{}
	}
	origin := inv.Transform(screen.Origin())
	return geom.Rect{
		X:      origin.X,
		Y:      origin.Y,
		Width:  screen.Width / s.Scale,
		Height: screen.Height / s.Scale,
	}
}

// ScreenRect converts a document-space rectangle to container space.
func (s Space) ScreenRect(doc geom.Rect) geom.Rect {
	origin := s.toScreen().Transform(doc.Origin())
	return geom.Rect{
		X:      origin.X,
		Y:      origin.Y,
		Width:  doc.Width * s.Scale,
		Height: doc.Height * s.Scale,
	}
}

// CanvasBounds returns the canvas rectangle in container space for a page of
// the given pixel dimensions.
func (s Space) CanvasBounds(pixelWidth, pixelHeight float64) geom.Rect {
	return geom.Rect{
		X:      s.CanvasOrigin.X,
		Y:      s.CanvasOrigin.Y,
		Width:  pixelWidth,
		Height: pixelHeight,
	}
}
