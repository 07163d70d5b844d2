// Package detect defines the signature-position detection abstraction. The
// workflow asks an Engine for candidate placements; engines range from the
// hosted AI webhook to a local OCR scan of the rendered pages. Engines use
// whichever parts of the Request they need and ignore the rest.
package detect

import (
	"context"
	"image"
)

// Candidate is a machine-suggested placement rectangle in document space,
// not yet committed. List order is preference order.
type Candidate struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Reason string  `json:"reason"`
}

// PageImage carries one rendered page for engines that inspect pixels. Scale
// is the render scale, needed to map pixel findings back to document space.
type PageImage struct {
	Page  int
	Image image.Image
	Scale float64
}

// Request describes one detection run.
type Request struct {
	// DocumentID identifies the persisted document for remote engines.
	DocumentID string
	// Pages holds rendered page bitmaps for local engines. May be empty for
	// remote engines.
	Pages []PageImage
}

// Engine proposes candidate placements for a document. Returning an empty
// slice with a nil error means "no positions found" and is not a failure.
type Engine interface {
	Name() string
	Detect(ctx context.Context, req Request) ([]Candidate, error)
}

var defaultEngine Engine = noopEngine{}

// DefaultEngine returns the package default engine. Importing
// detect/tesseract replaces it with the OCR-backed engine.
func DefaultEngine() Engine { return defaultEngine }

// SetDefaultEngine sets the package default engine.
func SetDefaultEngine(engine Engine) { defaultEngine = engine }

type noopEngine struct{}

func (noopEngine) Name() string { return "noop" }

func (noopEngine) Detect(context.Context, Request) ([]Candidate, error) {
	return nil, nil
}

// PositionFetcher is the remote half of webhook detection; *client.Client
// satisfies it.
type PositionFetcher interface {
	DetectPositions(ctx context.Context, documentID string) ([]Candidate, error)
}

// WebhookEngine delegates detection to the hosted workflow-automation
// endpoint.
type WebhookEngine struct {
	fetcher PositionFetcher
}

// NewWebhookEngine wraps a PositionFetcher as an Engine.
func NewWebhookEngine(fetcher PositionFetcher) *WebhookEngine {
	return &WebhookEngine{fetcher: fetcher}
}

func (e *WebhookEngine) Name() string { return "webhook" }

func (e *WebhookEngine) Detect(ctx context.Context, req Request) ([]Candidate, error) {
	if req.DocumentID == "" {
		return nil, nil
	}
	return e.fetcher.DetectPositions(ctx, req.DocumentID)
}
