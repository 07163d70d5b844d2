// Package tesseract provides a local, OCR-backed detection engine. It scans
// rendered page bitmaps for textual signature anchors ("Signature:", "Sign
// here", underscore rules) and proposes candidate placements near them, as a
// fallback when the hosted detection webhook is unavailable.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/docsops/signflow/detect"
)

func init() {
	detect.SetDefaultEngine(NewEngine())
}

// Candidate dimensions in document units when the anchor itself does not
// suggest a size.
const (
	candidateWidth  = 150
	candidateHeight = 75
	anchorGap       = 8
)

// Engine implements detect.Engine using the gosseract client.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed detection engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Detect OCRs every supplied page bitmap and returns one candidate per
// anchor found, in page order. Pages that fail to OCR abort the run.
func (e *Engine) Detect(ctx context.Context, req detect.Request) ([]detect.Candidate, error) {
	var out []detect.Candidate
	for _, page := range req.Pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if page.Image == nil || page.Scale <= 0 {
			continue
		}
		words, err := e.pageWords(page.Image)
		if err != nil {
			return nil, fmt.Errorf("detect page %d: %w", page.Page, err)
		}
		out = append(out, candidatesForPage(page, words)...)
	}
	return out, nil
}

type word struct {
	text string
	box  image.Rectangle
}

func (e *Engine) pageWords(img image.Image) ([]word, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	c := e.clientFactory()
	defer c.Close()
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	words := make([]word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, word{text: b.Word, box: b.Box})
	}
	return words, nil
}

func candidatesForPage(page detect.PageImage, words []word) []detect.Candidate {
	bounds := page.Image.Bounds()
	naturalW := float64(bounds.Dx()) / page.Scale
	naturalH := float64(bounds.Dy()) / page.Scale
	var out []detect.Candidate
	for _, w := range words {
		reason, ok := anchorReason(w.text)
		if !ok {
			continue
		}
		out = append(out, candidateFromAnchor(page.Page, w.box, page.Scale, naturalW, naturalH, reason))
	}
	return out
}

// anchorReason classifies a recognized word as a signature anchor.
func anchorReason(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= 4 && strings.Count(trimmed, "_") == len(trimmed) {
		return "signature line", true
	}
	normalized := strings.ToLower(strings.Trim(trimmed, ":().,"))
	switch normalized {
	case "signature", "sign", "signed", "signatory", "countersign":
		return fmt.Sprintf("text anchor %q", trimmed), true
	}
	return "", false
}

// candidateFromAnchor places a default-sized candidate directly above the
// anchor, converted to document space and clamped into the page.
func candidateFromAnchor(page int, box image.Rectangle, scale, naturalW, naturalH float64, reason string) detect.Candidate {
	docLeft := float64(box.Min.X) / scale
	docTop := float64(box.Min.Y) / scale

	c := detect.Candidate{
		Page:   page,
		X:      docLeft,
		Y:      docTop - candidateHeight - anchorGap,
		Width:  candidateWidth,
		Height: candidateHeight,
		Reason: reason,
	}
	if c.X+c.Width > naturalW {
		c.X = naturalW - c.Width
	}
	if c.X < 0 {
		c.X = 0
	}
	if c.Y+c.Height > naturalH {
		c.Y = naturalH - c.Height
	}
	if c.Y < 0 {
		c.Y = 0
	}
	return c
}
