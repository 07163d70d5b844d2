package coords

import (
	"math"
	"testing"

	"github.com/docsops/signflow/geom"
)

func TestMatrixInverseRoundTrip(t *testing.T) {
	m := Scale(0.758, 0.758).Multiply(Translate(16, 16))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse failed: %v", err)
	}
	p := geom.Point{X: 123.4, Y: 567.8}
	back := inv.Transform(m.Transform(p))
	if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
		t.Fatalf("round trip drifted: %+v -> %+v", p, back)
	}
}

func TestMatrixSingular(t *testing.T) {
	if _, err := Scale(0, 0).Inverse(); err != ErrSingular {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
}

func TestPointerToDocumentChain(t *testing.T) {
	s := Space{
		Scale:           0.5,
		CanvasOrigin:    geom.Point{X: 16, Y: 16},
		ContainerOrigin: geom.Point{X: 200, Y: 100},
	}
	// A pointer at client (316, 216) is (116, 116) in the container and
	// (100, 100) on the canvas, i.e. (200, 200) in document units.
	doc := s.ToDocument(s.ToCanvas(s.ToContainer(geom.Point{X: 316, Y: 216})))
	if doc.X != 200 || doc.Y != 200 {
		t.Fatalf("document point = %+v, want (200, 200)", doc)
	}
}

// Document rects survive the screen round trip within one unit after integer
// rounding, for any scale and offsets.
func TestRectRoundTripWithinOneUnit(t *testing.T) {
	scales := []float64{0.33, 0.758, 1, 1.5, 2.2}
	offsets := []geom.Point{{X: 0, Y: 0}, {X: 16, Y: 16}, {X: 37.5, Y: 12.25}}
	rects := []geom.Rect{
		{X: 0, Y: 0, Width: 120, Height: 60},
		{X: 400, Y: 700, Width: 120, Height: 60},
		{X: 13, Y: 791, Width: 1, Height: 1},
		{X: 611, Y: 0, Width: 1, Height: 792},
	}
	for _, sc := range scales {
		for _, off := range offsets {
			s := Space{Scale: sc, CanvasOrigin: off}
			for _, r := range rects {
				got := s.DocumentRect(s.ScreenRect(r))
				for name, pair := range map[string][2]float64{
					"x":      {math.Round(got.X), math.Round(r.X)},
					"y":      {math.Round(got.Y), math.Round(r.Y)},
					"width":  {math.Round(got.Width), math.Round(r.Width)},
					"height": {math.Round(got.Height), math.Round(r.Height)},
				} {
					if math.Abs(pair[0]-pair[1]) > 1 {
						t.Errorf("scale=%v offset=%+v rect=%+v: %s drifted %v -> %v",
							sc, off, r, name, pair[1], pair[0])
					}
				}
			}
		}
	}
}

func TestScreenRectPlacesCandidate(t *testing.T) {
	// Candidate at document (400, 700) on a page rendered at 0.758 with the
	// canvas inset 16px in the container.
	s := Space{Scale: 0.758, CanvasOrigin: geom.Point{X: 16, Y: 16}}
	got := s.ScreenRect(geom.Rect{X: 400, Y: 700, Width: 120, Height: 60})
	if math.Abs(got.X-(400*0.758+16)) > 1e-9 {
		t.Errorf("x = %v", got.X)
	}
	if math.Abs(got.Y-(700*0.758+16)) > 1e-9 {
		t.Errorf("y = %v", got.Y)
	}
	if math.Abs(got.Width-120*0.758) > 1e-9 || math.Abs(got.Height-60*0.758) > 1e-9 {
		t.Errorf("size = %vx%v", got.Width, got.Height)
	}
}
