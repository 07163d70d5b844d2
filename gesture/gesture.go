// Package gesture implements the pointer gestures that move and resize the
// signature overlay. Controllers are stateless between gestures: Begin
// captures everything the gesture needs, Update is a pure function of the
// captured state and the current pointer, and End releases the gesture
// exactly once. Mouse and touch input share the same handle shape.
package gesture

import (
	"errors"

	"github.com/docsops/signflow/geom"
)

var (
	// ErrGestureActive is returned by Begin while another gesture holds the
	// pointer.
	ErrGestureActive = errors.New("gesture: another gesture is active")
	// ErrNoGesture is returned by Update when no gesture is in progress.
	ErrNoGesture = errors.New("gesture: no active gesture")
	// ErrStaleGesture is returned when the page bitmap was re-rendered after
	// the gesture began; the caller must discard the gesture's result.
	ErrStaleGesture = errors.New("gesture: bitmap re-rendered mid-gesture")
)

// Default screen-space size bounds for resize, matching the overlay's
// interaction design.
const (
	DefaultMinWidth = 50
	DefaultMaxWidth = 400
)

type dragState struct {
	offset     geom.Point
	size       geom.Size
	bounds     geom.Rect
	generation uint64
}

// DragController repositions a rectangular overlay under the pointer. While a
// drag is active the controller owns pointer updates regardless of where they
// land, the moral equivalent of document-level move/up listeners.
type DragController struct {
	active *dragState
}

// Begin starts a drag. pointer is the client-space pointer position, current
// the overlay's container-space rectangle, bounds the canvas rectangle in
// container space, and generation the renderer generation the gesture is
// valid against.
func (c *DragController) Begin(pointer geom.Point, current geom.Rect, bounds geom.Rect, generation uint64) error {
	if c.active != nil {
		return ErrGestureActive
	}
	c.active = &dragState{
		offset:     pointer.Sub(current.Origin()),
		size:       current.Size(),
		bounds:     bounds,
		generation: generation,
	}
	return nil
}

// Update computes the overlay rectangle for the current pointer position,
// clamped so the overlay never leaves the canvas. A generation mismatch
// cancels the gesture and returns ErrStaleGesture.
func (c *DragController) Update(pointer geom.Point, generation uint64) (geom.Rect, error) {
	st := c.active
	if st == nil {
		return geom.Rect{}, ErrNoGesture
	}
	if generation != st.generation {
		c.active = nil
		return geom.Rect{}, ErrStaleGesture
	}
	rect := geom.RectFrom(pointer.Sub(st.offset), st.size)
	return rect.ClampInto(st.bounds), nil
}

// End releases the gesture. Calling End with no active gesture is a no-op, so
// teardown paths can call it unconditionally.
func (c *DragController) End() { c.active = nil }

// Active reports whether a drag is in progress.
func (c *DragController) Active() bool { return c.active != nil }

type resizeState struct {
	initialPointer geom.Point
	initialSize    geom.Size
	aspect         float64
	generation     uint64
}

// ResizeController grows or shrinks the overlay from its corner handle,
// preserving the aspect ratio captured when the gesture began.
type ResizeController struct {
	minWidth float64
	maxWidth float64
	active   *resizeState
}

// ResizeOption configures a ResizeController.
type ResizeOption func(*ResizeController)

// WithSizeBounds overrides the screen-space width clamp.
func WithSizeBounds(minWidth, maxWidth float64) ResizeOption {
	return func(c *ResizeController) {
		c.minWidth, c.maxWidth = minWidth, maxWidth
	}
}

// NewResizeController constructs a ResizeController with the default 50–400px
// width bounds.
func NewResizeController(opts ...ResizeOption) *ResizeController {
	c := &ResizeController{minWidth: DefaultMinWidth, maxWidth: DefaultMaxWidth}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a resize from the overlay's current size.
func (c *ResizeController) Begin(pointer geom.Point, current geom.Size, generation uint64) error {
	if c.active != nil {
		return ErrGestureActive
	}
	if current.IsEmpty() {
		return errors.New("gesture: cannot resize an empty overlay")
	}
	c.active = &resizeState{
		initialPointer: pointer,
		initialSize:    current,
		aspect:         current.AspectRatio(),
		generation:     generation,
	}
	return nil
}

// Update computes the new size for the current pointer position. The width
// follows the horizontal pointer delta and is clamped to the controller's
// bounds; the height is re-derived from the captured aspect ratio after
// clamping so the clamp never distorts the overlay.
func (c *ResizeController) Update(pointer geom.Point, generation uint64) (geom.Size, error) {
	st := c.active
	if st == nil {
		return geom.Size{}, ErrNoGesture
	}
	if generation != st.generation {
		c.active = nil
		return geom.Size{}, ErrStaleGesture
	}
	width := geom.Clamp(st.initialSize.Width+(pointer.X-st.initialPointer.X), c.minWidth, c.maxWidth)
	return geom.Size{Width: width, Height: width / st.aspect}, nil
}

// End releases the gesture; safe to call when idle.
func (c *ResizeController) End() { c.active = nil }

// Active reports whether a resize is in progress.
func (c *ResizeController) Active() bool { return c.active != nil }
