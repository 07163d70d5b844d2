// Package placement maintains the editable signature placement: one
// container-space rectangle bound to the page geometry it was positioned
// against. The document-space rectangle is always derived from that pair, so
// the two representations cannot fall out of sync.
package placement

import (
	"errors"
	"fmt"
	"math"

	"github.com/docsops/signflow/coords"
	"github.com/docsops/signflow/geom"
	"github.com/docsops/signflow/gesture"
	"github.com/docsops/signflow/render"
)

// Rect is the authoritative signature rectangle in document space (scale-1
// units, origin at the page's top-left). It is the only representation that
// survives the interaction session and the shape sent to the server.
type Rect struct {
	Page   int
	X      int
	Y      int
	Width  int
	Height int
}

// Preset names a fixed overlay position with padding from the canvas edges.
type Preset string

const (
	PresetTopLeft     Preset = "top-left"
	PresetTopRight    Preset = "top-right"
	PresetBottomLeft  Preset = "bottom-left"
	PresetBottomRight Preset = "bottom-right"
	PresetCenter      Preset = "center"
	// PresetCustom marks a placement positioned by drag or by an applied
	// candidate; applying it is a no-op.
	PresetCustom Preset = "custom"
)

// PresetPadding is the screen-space gap between a preset placement and the
// canvas edge.
const PresetPadding = 50

// Default overlay placement in container pixels, clamped into the canvas on
// session start.
var DefaultScreenRect = geom.Rect{X: 350, Y: 700, Width: 120, Height: 60}

// ErrPageNotRendered is returned when an operation requires the placement's
// page to be the one currently rendered.
var ErrPageNotRendered = errors.New("placement: target page is not the rendered page")

type view struct {
	space      coords.Space
	natural    geom.Size
	page       int
	generation uint64
}

type placed struct {
	screen  geom.Rect
	space   coords.Space
	natural geom.Size
	page    int
}

// Session wraps one live placement. All coordinates given to gesture methods
// are pointer/client coordinates; stored state is container space.
type Session struct {
	view   view
	placed placed
	preset Preset

	drag   gesture.DragController
	resize *gesture.ResizeController
}

// Option configures a Session.
type Option func(*Session)

// WithInitialRect overrides the default starting overlay rectangle
// (container space).
func WithInitialRect(r geom.Rect) Option {
	return func(s *Session) { s.placed.screen = r }
}

// WithResizeBounds overrides the screen-space resize clamp.
func WithResizeBounds(minWidth, maxWidth float64) Option {
	return func(s *Session) {
		s.resize = gesture.NewResizeController(gesture.WithSizeBounds(minWidth, maxWidth))
	}
}

// NewSession creates a placement session against the given rendered page.
// canvasOrigin is the bitmap's offset within the container, containerOrigin
// the container's offset in client coordinates.
func NewSession(pg render.PageGeometry, canvasOrigin, containerOrigin geom.Point, generation uint64, opts ...Option) *Session {
	s := &Session{
		resize: gesture.NewResizeController(),
		preset: PresetBottomRight,
	}
	s.placed.screen = DefaultScreenRect
	for _, opt := range opts {
		opt(s)
	}
	s.view = viewFrom(pg, canvasOrigin, containerOrigin, generation)
	s.placed.screen = s.placed.screen.ClampInto(s.canvasBounds())
	s.placed.space = s.view.space
	s.placed.natural = s.view.natural
	s.placed.page = s.view.page
	return s
}

func viewFrom(pg render.PageGeometry, canvasOrigin, containerOrigin geom.Point, generation uint64) view {
	return view{
		space: coords.Space{
			Scale:           pg.RenderScale,
			CanvasOrigin:    canvasOrigin,
			ContainerOrigin: containerOrigin,
		},
		natural:    geom.Size{Width: pg.NaturalWidth, Height: pg.NaturalHeight},
		page:       pg.PageNumber,
		generation: generation,
	}
}

func (s *Session) canvasBounds() geom.Rect {
	return s.view.space.CanvasBounds(
		s.view.natural.Width*s.view.space.Scale,
		s.view.natural.Height*s.view.space.Scale,
	)
}

// UpdateGeometry must be called after every re-render (page change, viewport
// resize). Active gestures are cancelled: they began against a stale bitmap.
// When the rendered page is the placement's own page, the overlay rectangle
// is re-derived from the document rect so a scale change moves it in lockstep
// with the page.
func (s *Session) UpdateGeometry(pg render.PageGeometry, canvasOrigin, containerOrigin geom.Point, generation uint64) {
	s.CancelGestures()
	var doc geom.Rect
	rehome := pg.PageNumber == s.placed.page
	if rehome {
		doc = s.placed.space.DocumentRect(s.placed.screen)
	}
	s.view = viewFrom(pg, canvasOrigin, containerOrigin, generation)
	if rehome {
		s.placed.screen = s.view.space.ScreenRect(doc).ClampInto(s.canvasBounds())
		s.placed.space = s.view.space
		s.placed.natural = s.view.natural
	}
}

// SetFromScreen stores a container-space rectangle, clamped into the canvas.
// The placement re-homes to the currently rendered page.
func (s *Session) SetFromScreen(r geom.Rect) error {
	if r.IsEmpty() {
		return errors.New("placement: empty rectangle")
	}
	s.placed = placed{
		screen:  r.ClampInto(s.canvasBounds()),
		space:   s.view.space,
		natural: s.view.natural,
		page:    s.view.page,
	}
	s.preset = PresetCustom
	return nil
}

// SetFromDocument stores a document-space rectangle, e.g. an applied
// detection candidate or a restored placement. The rectangle's page must
// already be the rendered page so the overlay is never positioned against the
// wrong bitmap.
func (s *Session) SetFromDocument(r Rect) error {
	if r.Page != s.view.page {
		return fmt.Errorf("%w: have page %d, placement targets page %d",
			ErrPageNotRendered, s.view.page, r.Page)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.New("placement: empty rectangle")
	}
	if float64(r.X+r.Width) > s.view.natural.Width || float64(r.Y+r.Height) > s.view.natural.Height || r.X < 0 || r.Y < 0 {
		return fmt.Errorf("placement: rect %+v exceeds page bounds %gx%g",
			r, s.view.natural.Width, s.view.natural.Height)
	}
	screen := s.view.space.ScreenRect(geom.Rect{
		X: float64(r.X), Y: float64(r.Y),
		Width: float64(r.Width), Height: float64(r.Height),
	})
	s.placed = placed{
		screen:  screen.ClampInto(s.canvasBounds()),
		space:   s.view.space,
		natural: s.view.natural,
		page:    r.Page,
	}
	s.preset = PresetCustom
	return nil
}

// DocumentRect derives the authoritative document-space rectangle from the
// live overlay and the geometry snapshot it was placed against. It is
// recomputed on every call, never cached, and rounded to integers.
func (s *Session) DocumentRect() Rect {
	doc := s.placed.space.DocumentRect(s.placed.screen)
	r := Rect{
		Page:   s.placed.page,
		X:      int(math.Round(doc.X)),
		Y:      int(math.Round(doc.Y)),
		Width:  int(math.Round(doc.Width)),
		Height: int(math.Round(doc.Height)),
	}
	// Rounding can push the far edge a unit past the page; pull the origin
	// back so x+width <= naturalWidth always holds.
	if over := r.X + r.Width - int(math.Round(s.placed.natural.Width)); over > 0 && r.X >= over {
		r.X -= over
	}
	if over := r.Y + r.Height - int(math.Round(s.placed.natural.Height)); over > 0 && r.Y >= over {
		r.Y -= over
	}
	if r.X < 0 {
		r.X = 0
	}
	if r.Y < 0 {
		r.Y = 0
	}
	return r
}

// ScreenRect returns the live container-space rectangle.
func (s *Session) ScreenRect() geom.Rect { return s.placed.screen }

// Page returns the page the placement belongs to, which is not necessarily
// the rendered page.
func (s *Session) Page() int { return s.placed.page }

// RenderedPage returns the page currently rendered in the viewport.
func (s *Session) RenderedPage() int { return s.view.page }

// Preset returns the preset label of the current placement.
func (s *Session) Preset() Preset { return s.preset }

// ApplyPreset moves the overlay to a fixed position with PresetPadding from
// the canvas edges, preserving its current size. PresetCustom is a no-op.
func (s *Session) ApplyPreset(p Preset) {
	if p == PresetCustom {
		return
	}
	bounds := s.canvasBounds()
	size := s.placed.screen.Size()
	var origin geom.Point
	switch p {
	case PresetTopLeft:
		origin = geom.Point{X: bounds.X + PresetPadding, Y: bounds.Y + PresetPadding}
	case PresetTopRight:
		origin = geom.Point{X: bounds.Right() - size.Width - PresetPadding, Y: bounds.Y + PresetPadding}
	case PresetBottomLeft:
		origin = geom.Point{X: bounds.X + PresetPadding, Y: bounds.Bottom() - size.Height - PresetPadding}
	case PresetBottomRight:
		origin = geom.Point{X: bounds.Right() - size.Width - PresetPadding, Y: bounds.Bottom() - size.Height - PresetPadding}
	case PresetCenter:
		origin = geom.Point{
			X: bounds.X + (bounds.Width-size.Width)/2,
			Y: bounds.Y + (bounds.Height-size.Height)/2,
		}
	default:
		return
	}
	s.placed = placed{
		screen:  geom.RectFrom(origin, size).ClampInto(bounds),
		space:   s.view.space,
		natural: s.view.natural,
		page:    s.view.page,
	}
	s.preset = p
}

// SetScreenSize applies a manually entered overlay size in container pixels.
// Each dimension is clamped to the resize bounds and to the canvas size, and
// the position is re-clamped so the overlay stays on the canvas.
func (s *Session) SetScreenSize(width, height float64) {
	bounds := s.canvasBounds()
	width = geom.Clamp(width, gesture.DefaultMinWidth, gesture.DefaultMaxWidth)
	height = geom.Clamp(height, gesture.DefaultMinWidth/2, gesture.DefaultMaxWidth)
	if width > bounds.Width {
		width = bounds.Width
	}
	if height > bounds.Height {
		height = bounds.Height
	}
	rect := s.placed.screen.WithSize(geom.Size{Width: width, Height: height})
	s.placed = placed{
		screen:  rect.ClampInto(s.canvasBounds()),
		space:   s.view.space,
		natural: s.view.natural,
		page:    s.view.page,
	}
}

// BeginDrag starts moving the overlay under the given client-space pointer.
// Drag and resize are mutually exclusive per gesture.
func (s *Session) BeginDrag(pointer geom.Point) error {
	if s.resize.Active() {
		return gesture.ErrGestureActive
	}
	if s.placed.page != s.view.page {
		return ErrPageNotRendered
	}
	return s.drag.Begin(s.view.space.ToContainer(pointer), s.placed.screen, s.canvasBounds(), s.view.generation)
}

// DragTo moves the overlay to follow the pointer. A stale-generation error
// means the page was re-rendered mid-gesture; the gesture is cancelled and
// the placement left untouched.
func (s *Session) DragTo(pointer geom.Point) error {
	rect, err := s.drag.Update(s.view.space.ToContainer(pointer), s.view.generation)
	if err != nil {
		return err
	}
	s.placed.screen = rect
	s.preset = PresetCustom
	return nil
}

// EndDrag releases the drag gesture; safe to call unconditionally.
func (s *Session) EndDrag() { s.drag.End() }

// BeginResize starts resizing the overlay from its corner handle.
func (s *Session) BeginResize(pointer geom.Point) error {
	if s.drag.Active() {
		return gesture.ErrGestureActive
	}
	if s.placed.page != s.view.page {
		return ErrPageNotRendered
	}
	return s.resize.Begin(s.view.space.ToContainer(pointer), s.placed.screen.Size(), s.view.generation)
}

// ResizeTo updates the overlay size to follow the pointer, aspect preserved.
// The size is additionally capped so the overlay cannot grow past the canvas
// edge, which on a zoomed-out page is tighter than the pixel resize bounds.
func (s *Session) ResizeTo(pointer geom.Point) error {
	size, err := s.resize.Update(s.view.space.ToContainer(pointer), s.view.generation)
	if err != nil {
		return err
	}
	s.placed.screen = s.placed.screen.WithSize(s.fitSize(size))
	s.preset = PresetCustom
	return nil
}

// fitSize shrinks a prospective overlay size, aspect preserved, so the rect
// anchored at the current origin stays inside the canvas.
func (s *Session) fitSize(size geom.Size) geom.Size {
	bounds := s.canvasBounds()
	maxW := bounds.Right() - s.placed.screen.X
	maxH := bounds.Bottom() - s.placed.screen.Y
	f := 1.0
	if maxW > 0 && size.Width > maxW {
		f = maxW / size.Width
	}
	if maxH > 0 && size.Height*f > maxH {
		f = maxH / size.Height
	}
	if f < 1 {
		size.Width *= f
		size.Height *= f
	}
	return size
}

// EndResize releases the resize gesture; safe to call unconditionally.
func (s *Session) EndResize() { s.resize.End() }

// GestureActive reports whether any gesture is in progress.
func (s *Session) GestureActive() bool { return s.drag.Active() || s.resize.Active() }

// CancelGestures drops any in-progress gesture without applying its result.
func (s *Session) CancelGestures() {
	s.drag.End()
	s.resize.End()
}
