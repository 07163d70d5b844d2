package placement

import (
	"errors"
	"math"
	"testing"

	"github.com/docsops/signflow/geom"
	"github.com/docsops/signflow/gesture"
	"github.com/docsops/signflow/render"
)

func pageGeom(page int, scale float64) render.PageGeometry {
	return render.PageGeometry{
		PageNumber:    page,
		NaturalWidth:  612,
		NaturalHeight: 792,
		RenderScale:   scale,
		PixelWidth:    612 * scale,
		PixelHeight:   792 * scale,
	}
}

var canvasOrigin = geom.Point{X: 16, Y: 16}

func newSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(pageGeom(1, 0.758), canvasOrigin, geom.Point{}, 1)
}

func TestResizeOnZoomedOutPageStaysOnPage(t *testing.T) {
	// At scale 0.49 the canvas is 299.88x388.08 px, narrower than the 400 px
	// resize cap; the document rect must still satisfy x+width <= 612.
	s := NewSession(pageGeom(1, 0.49), geom.Point{}, geom.Point{}, 1,
		WithInitialRect(geom.Rect{X: 0, Y: 0, Width: 120, Height: 60}))
	if err := s.BeginResize(geom.Point{X: 120, Y: 60}); err != nil {
		t.Fatalf("begin resize: %v", err)
	}
	if err := s.ResizeTo(geom.Point{X: 800, Y: 60}); err != nil {
		t.Fatalf("resize: %v", err)
	}
	s.EndResize()

	if r := s.ScreenRect(); r.Right() > 612*0.49+1e-9 {
		t.Fatalf("screen rect escapes canvas: %+v", r)
	}
	doc := s.DocumentRect()
	if doc.X+doc.Width > 612 {
		t.Fatalf("doc rect exceeds page width: %+v", doc)
	}
	if doc.Y+doc.Height > 792 {
		t.Fatalf("doc rect exceeds page height: %+v", doc)
	}
	// Aspect survives the canvas cap.
	if got := float64(doc.Width) / float64(doc.Height); math.Abs(got-2) > 0.02 {
		t.Fatalf("aspect = %v", got)
	}
}

func TestSetScreenSizeOnZoomedOutPageStaysOnPage(t *testing.T) {
	s := NewSession(pageGeom(1, 0.49), geom.Point{}, geom.Point{}, 1,
		WithInitialRect(geom.Rect{X: 0, Y: 0, Width: 120, Height: 60}))
	s.SetScreenSize(400, 400)

	if r := s.ScreenRect(); r.Right() > 612*0.49+1e-9 || r.Bottom() > 792*0.49+1e-9 {
		t.Fatalf("screen rect escapes canvas: %+v", r)
	}
	doc := s.DocumentRect()
	if doc.X+doc.Width > 612 || doc.Y+doc.Height > 792 {
		t.Fatalf("doc rect exceeds page: %+v", doc)
	}
}

func TestResizeMarksPresetCustom(t *testing.T) {
	s := newSession(t)
	s.ApplyPreset(PresetBottomRight)
	if err := s.BeginResize(geom.Point{X: 400, Y: 400}); err != nil {
		t.Fatalf("begin resize: %v", err)
	}
	if err := s.ResizeTo(geom.Point{X: 380, Y: 400}); err != nil {
		t.Fatalf("resize: %v", err)
	}
	s.EndResize()
	if s.Preset() != PresetCustom {
		t.Fatalf("preset = %q, want custom", s.Preset())
	}
}

func TestNewSessionClampsDefaultRect(t *testing.T) {
	s := newSession(t)
	r := s.ScreenRect()
	bounds := geom.Rect{X: 16, Y: 16, Width: 612 * 0.758, Height: 792 * 0.758}
	if r.X < bounds.X || r.Right() > bounds.Right()+1e-9 ||
		r.Y < bounds.Y || r.Bottom() > bounds.Bottom()+1e-9 {
		t.Fatalf("default rect %+v escapes canvas %+v", r, bounds)
	}
	if r.Size() != DefaultScreenRect.Size() {
		t.Fatalf("default size altered: %+v", r.Size())
	}
	if s.Page() != 1 || s.RenderedPage() != 1 {
		t.Fatalf("pages: placed=%d rendered=%d", s.Page(), s.RenderedPage())
	}
}

func TestSetFromDocumentScreenMapping(t *testing.T) {
	s := newSession(t)
	if err := s.SetFromDocument(Rect{Page: 1, X: 400, Y: 700, Width: 120, Height: 60}); err != nil {
		t.Fatalf("set from document: %v", err)
	}
	got := s.ScreenRect()
	if math.Abs(got.X-(400*0.758+16)) > 1e-9 || math.Abs(got.Y-(700*0.758+16)) > 1e-9 {
		t.Fatalf("screen origin = (%v, %v)", got.X, got.Y)
	}
	if s.Preset() != PresetCustom {
		t.Fatalf("preset = %q, want custom", s.Preset())
	}
}

func TestSetFromDocumentRejectsWrongPage(t *testing.T) {
	s := newSession(t)
	err := s.SetFromDocument(Rect{Page: 2, X: 10, Y: 10, Width: 50, Height: 25})
	if !errors.Is(err, ErrPageNotRendered) {
		t.Fatalf("expected ErrPageNotRendered, got %v", err)
	}
}

func TestSetFromDocumentRejectsOutOfBounds(t *testing.T) {
	s := newSession(t)
	if err := s.SetFromDocument(Rect{Page: 1, X: 600, Y: 10, Width: 50, Height: 25}); err == nil {
		t.Fatalf("rect past right edge accepted")
	}
	if err := s.SetFromDocument(Rect{Page: 1, X: 10, Y: 10, Width: 0, Height: 25}); err == nil {
		t.Fatalf("empty rect accepted")
	}
}

func TestDocumentRectRoundTrip(t *testing.T) {
	s := newSession(t)
	want := Rect{Page: 1, X: 400, Y: 700, Width: 120, Height: 60}
	if err := s.SetFromDocument(want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got := s.DocumentRect()
	if abs(got.X-want.X) > 1 || abs(got.Y-want.Y) > 1 || abs(got.Width-want.Width) > 1 || abs(got.Height-want.Height) > 1 {
		t.Fatalf("round trip drifted: %+v -> %+v", want, got)
	}
	if got.X+got.Width > 612 || got.Y+got.Height > 792 {
		t.Fatalf("document rect exceeds page: %+v", got)
	}
}

// A viewport resize between placement and commit must not change the
// document rect: the conversion uses the geometry the overlay was placed
// against, re-derived in lockstep on every geometry update.
func TestScaleChangePreservesDocumentRect(t *testing.T) {
	s := newSession(t)
	if err := s.SetFromDocument(Rect{Page: 1, X: 100, Y: 200, Width: 150, Height: 75}); err != nil {
		t.Fatalf("set: %v", err)
	}
	before := s.DocumentRect()

	s.UpdateGeometry(pageGeom(1, 1.25), canvasOrigin, geom.Point{}, 2)

	after := s.DocumentRect()
	if abs(after.X-before.X) > 1 || abs(after.Y-before.Y) > 1 ||
		abs(after.Width-before.Width) > 1 || abs(after.Height-before.Height) > 1 {
		t.Fatalf("document rect moved on scale change: %+v -> %+v", before, after)
	}
	// The on-screen rect must have scaled with the page.
	if math.Abs(s.ScreenRect().X-(float64(before.X)*1.25+16)) > 1.5 {
		t.Fatalf("screen rect did not track new scale: %+v", s.ScreenRect())
	}
}

func TestNavigationKeepsPlacementPage(t *testing.T) {
	s := newSession(t)
	if err := s.SetFromDocument(Rect{Page: 1, X: 100, Y: 200, Width: 150, Height: 75}); err != nil {
		t.Fatalf("set: %v", err)
	}
	before := s.DocumentRect()

	// Navigate to page 3; the placement still belongs to page 1.
	s.UpdateGeometry(pageGeom(3, 0.758), canvasOrigin, geom.Point{}, 2)
	if s.Page() != 1 || s.RenderedPage() != 3 {
		t.Fatalf("pages after navigation: placed=%d rendered=%d", s.Page(), s.RenderedPage())
	}
	if got := s.DocumentRect(); got != before {
		t.Fatalf("document rect changed by navigation: %+v -> %+v", before, got)
	}

	// Dragging on the rendered page re-homes the placement there.
	if err := s.SetFromScreen(geom.Rect{X: 100, Y: 100, Width: 120, Height: 60}); err != nil {
		t.Fatalf("set from screen: %v", err)
	}
	if s.Page() != 3 {
		t.Fatalf("placement did not re-home to rendered page: %d", s.Page())
	}
}

func TestApplyPresets(t *testing.T) {
	s := newSession(t)
	bounds := geom.Rect{X: 16, Y: 16, Width: 612 * 0.758, Height: 792 * 0.758}
	size := s.ScreenRect().Size()

	cases := []struct {
		preset Preset
		want   geom.Point
	}{
		{PresetTopLeft, geom.Point{X: bounds.X + 50, Y: bounds.Y + 50}},
		{PresetTopRight, geom.Point{X: bounds.Right() - size.Width - 50, Y: bounds.Y + 50}},
		{PresetBottomLeft, geom.Point{X: bounds.X + 50, Y: bounds.Bottom() - size.Height - 50}},
		{PresetBottomRight, geom.Point{X: bounds.Right() - size.Width - 50, Y: bounds.Bottom() - size.Height - 50}},
		{PresetCenter, geom.Point{X: bounds.X + (bounds.Width-size.Width)/2, Y: bounds.Y + (bounds.Height-size.Height)/2}},
	}
	for _, tc := range cases {
		s.ApplyPreset(tc.preset)
		got := s.ScreenRect().Origin()
		if math.Abs(got.X-tc.want.X) > 1e-9 || math.Abs(got.Y-tc.want.Y) > 1e-9 {
			t.Errorf("%s: origin = %+v, want %+v", tc.preset, got, tc.want)
		}
		if s.Preset() != tc.preset {
			t.Errorf("%s: preset label = %q", tc.preset, s.Preset())
		}
	}

	before := s.ScreenRect()
	s.ApplyPreset(PresetCustom)
	if s.ScreenRect() != before {
		t.Fatalf("custom preset moved the overlay")
	}
}

func TestDragLifecycle(t *testing.T) {
	s := newSession(t)
	if err := s.SetFromScreen(geom.Rect{X: 100, Y: 100, Width: 120, Height: 60}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.BeginDrag(geom.Point{X: 110, Y: 105}); err != nil {
		t.Fatalf("begin drag: %v", err)
	}
	if err := s.DragTo(geom.Point{X: 210, Y: 155}); err != nil {
		t.Fatalf("drag to: %v", err)
	}
	got := s.ScreenRect()
	if got.X != 200 || got.Y != 150 {
		t.Fatalf("dragged origin = (%v, %v), want (200, 150)", got.X, got.Y)
	}
	s.EndDrag()
	if s.GestureActive() {
		t.Fatalf("gesture still active after end")
	}
}

func TestDragAndResizeMutuallyExclusive(t *testing.T) {
	s := newSession(t)
	if err := s.BeginDrag(s.ScreenRect().Origin()); err != nil {
		t.Fatalf("begin drag: %v", err)
	}
	if err := s.BeginResize(geom.Point{}); !errors.Is(err, gesture.ErrGestureActive) {
		t.Fatalf("resize allowed during drag: %v", err)
	}
	s.EndDrag()
	if err := s.BeginResize(geom.Point{X: 200, Y: 200}); err != nil {
		t.Fatalf("begin resize after drag ended: %v", err)
	}
	if err := s.BeginDrag(geom.Point{}); !errors.Is(err, gesture.ErrGestureActive) {
		t.Fatalf("drag allowed during resize: %v", err)
	}
	s.EndResize()
}

func TestRerenderMidGestureCancelsIt(t *testing.T) {
	s := newSession(t)
	if err := s.BeginDrag(s.ScreenRect().Origin()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	before := s.ScreenRect()

	s.UpdateGeometry(pageGeom(1, 0.758), canvasOrigin, geom.Point{}, 2)

	if s.GestureActive() {
		t.Fatalf("gesture survived re-render")
	}
	if err := s.DragTo(geom.Point{X: 300, Y: 300}); !errors.Is(err, gesture.ErrNoGesture) {
		t.Fatalf("expected ErrNoGesture after cancellation, got %v", err)
	}
	if s.ScreenRect() != before {
		t.Fatalf("cancelled gesture moved the overlay")
	}
}

func TestResizeKeepsAspectThroughSession(t *testing.T) {
	s := newSession(t)
	if err := s.SetFromScreen(geom.Rect{X: 100, Y: 100, Width: 120, Height: 60}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.BeginResize(geom.Point{X: 220, Y: 160}); err != nil {
		t.Fatalf("begin resize: %v", err)
	}
	if err := s.ResizeTo(geom.Point{X: 280, Y: 160}); err != nil {
		t.Fatalf("resize to: %v", err)
	}
	got := s.ScreenRect()
	if got.Width != 180 || got.Height != 90 {
		t.Fatalf("resized to %vx%v, want 180x90", got.Width, got.Height)
	}
	if got.Origin() != (geom.Point{X: 100, Y: 100}) {
		t.Fatalf("resize moved the origin: %+v", got.Origin())
	}
	s.EndResize()
}

func TestSetScreenSizeClamps(t *testing.T) {
	s := newSession(t)
	s.SetScreenSize(1000, 20)
	got := s.ScreenRect().Size()
	if got.Width != 400 {
		t.Fatalf("width = %v, want 400", got.Width)
	}
	if got.Height != 25 {
		t.Fatalf("height = %v, want 25", got.Height)
	}
}

func TestBeginDragRequiresRenderedPage(t *testing.T) {
	s := newSession(t)
	s.UpdateGeometry(pageGeom(2, 0.758), canvasOrigin, geom.Point{}, 2)
	if err := s.BeginDrag(geom.Point{X: 100, Y: 100}); !errors.Is(err, ErrPageNotRendered) {
		t.Fatalf("drag allowed against wrong page: %v", err)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
