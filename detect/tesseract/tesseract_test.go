package tesseract

import (
	"image"
	"testing"

	"github.com/docsops/signflow/detect"
)

func TestAnchorReason(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Signature:", true},
		{"signature", true},
		{"(Signed)", true},
		{"Sign", true},
		{"____________", true},
		{"___", false}, // too short for a rule
		{"design", false},
		{"assignment", false},
		{"Total", false},
		{"", false},
	}
	for _, tc := range cases {
		if _, got := anchorReason(tc.text); got != tc.want {
			t.Errorf("anchorReason(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCandidateFromAnchorMapsToDocumentSpace(t *testing.T) {
	// Anchor word box at pixel (100, 600), page rendered at scale 2.
	box := image.Rect(100, 600, 180, 620)
	c := candidateFromAnchor(3, box, 2, 612, 792, "text anchor")
	if c.Page != 3 {
		t.Fatalf("page = %d", c.Page)
	}
	if c.X != 50 {
		t.Fatalf("x = %v, want 50", c.X)
	}
	// 600/2 = 300 doc units; candidate sits candidateHeight+anchorGap above.
	if c.Y != 300-candidateHeight-anchorGap {
		t.Fatalf("y = %v", c.Y)
	}
	if c.Width != candidateWidth || c.Height != candidateHeight {
		t.Fatalf("size = %vx%v", c.Width, c.Height)
	}
}

func TestCandidateFromAnchorClampsToPage(t *testing.T) {
	// Anchor at the extreme bottom-right corner of a small page.
	box := image.Rect(595, 5, 610, 15)
	c := candidateFromAnchor(1, box, 1, 612, 792, "r")
	if c.X+c.Width > 612 || c.X < 0 {
		t.Fatalf("x out of page: %+v", c)
	}
	if c.Y < 0 || c.Y+c.Height > 792 {
		t.Fatalf("y out of page: %+v", c)
	}
}

func TestCandidatesForPageFiltersWords(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 612, 792))
	page := detect.PageImage{Page: 1, Image: img, Scale: 1}
	words := []word{
		{text: "Invoice", box: image.Rect(10, 10, 80, 30)},
		{text: "Signature:", box: image.Rect(40, 700, 140, 720)},
		{text: "________", box: image.Rect(150, 700, 400, 712)},
	}
	got := candidatesForPage(page, words)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Reason == got[1].Reason {
		t.Fatalf("expected distinct reasons, got %q twice", got[0].Reason)
	}
}

func TestEngineName(t *testing.T) {
	if NewEngine().Name() != "tesseract" {
		t.Fatalf("unexpected engine name")
	}
}
