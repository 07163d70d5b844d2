// Package geom provides the 2D primitives shared by the placement engine:
// points, sizes and axis-aligned rectangles in pixel or document coordinates.
package geom

// Point is a position in a 2D coordinate space.
type Point struct {
	X, Y float64
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p translated by the negation of q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Size is a width/height pair.
type Size struct {
	Width, Height float64
}

// AspectRatio returns Width/Height, or 0 when the height is not positive.
func (s Size) AspectRatio() float64 {
	if s.Height <= 0 {
		return 0
	}
	return s.Width / s.Height
}

// IsEmpty reports whether the size has non-positive dimensions.
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

// Rect is an axis-aligned rectangle with the origin at its top-left corner.
type Rect struct {
	X, Y, Width, Height float64
}

// RectFrom builds a rectangle from an origin and a size.
func RectFrom(origin Point, size Size) Rect {
	return Rect{X: origin.X, Y: origin.Y, Width: size.Width, Height: size.Height}
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{r.X, r.Y} }

// Size returns the rectangle dimensions.
func (r Rect) Size() Size { return Size{r.Width, r.Height} }

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rectangle has non-positive dimensions.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point lies inside the rectangle, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// WithOrigin returns a copy of r moved to the given origin.
func (r Rect) WithOrigin(origin Point) Rect {
	r.X, r.Y = origin.X, origin.Y
	return r
}

// WithSize returns a copy of r with the given size.
func (r Rect) WithSize(size Size) Rect {
	r.Width, r.Height = size.Width, size.Height
	return r
}

// Clamp limits v to [lo, hi]. When hi < lo the lower bound wins, so a
// rectangle larger than its bounds pins to the bounds origin instead of
// oscillating.
func Clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// ClampInto moves r so that it lies within bounds, component-wise. The size is
// never altered.
func (r Rect) ClampInto(bounds Rect) Rect {
	r.X = Clamp(r.X, bounds.X, bounds.Right()-r.Width)
	r.Y = Clamp(r.Y, bounds.Y, bounds.Bottom()-r.Height)
	return r
}
