// Package render fits PDF pages into a viewport and produces the bitmap plus
// the scale factor the rest of the engine positions against. Rasterization
// itself is delegated to a Rasterizer so the engine stays independent of any
// particular PDF backend.
package render

import (
	"context"
	"fmt"
	"image"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/docsops/signflow/geom"
	"github.com/docsops/signflow/observability"
)

// Rasterizer renders pages of one loaded document. PageSize reports the
// page's natural dimensions at scale 1 in document units; Render produces a
// bitmap at the requested scale.
type Rasterizer interface {
	PageCount() int
	PageSize(ctx context.Context, pageNumber int) (width, height float64, err error)
	Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error)
}

// PageGeometry describes one rendered page. It is owned by the Renderer and
// read-only to everything else.
type PageGeometry struct {
	PageNumber    int
	NaturalWidth  float64
	NaturalHeight float64
	RenderScale   float64
	PixelWidth    float64
	PixelHeight   float64
}

// RenderError wraps a rasterization failure for one page.
type RenderError struct {
	PageNumber int
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.PageNumber, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DefaultMaxScale caps the fit scale so small pages are not blown up past a
// useful preview size.
const DefaultMaxScale = 2.2

// FitScale computes the scale that fits a page of the given natural size into
// the viewport, capped at maxScale.
func FitScale(naturalWidth, naturalHeight, viewportWidth, viewportHeight, maxScale float64) float64 {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return 0
	}
	scale := viewportWidth / naturalWidth
	if sy := viewportHeight / naturalHeight; sy < scale {
		scale = sy
	}
	if maxScale > 0 && scale > maxScale {
		scale = maxScale
	}
	return scale
}

// Renderer owns the current bitmap and PageGeometry for one document. A
// failed render keeps the previous bitmap so the viewport is never blanked.
type Renderer struct {
	rast     Rasterizer
	maxScale float64
	log      observability.Logger
	tracer   observability.Tracer

	bitmap     image.Image
	geometry   PageGeometry
	generation uint64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMaxScale overrides the fit-scale cap.
func WithMaxScale(maxScale float64) Option {
	return func(r *Renderer) { r.maxScale = maxScale }
}

// WithLogger sets the logger used for render diagnostics.
func WithLogger(log observability.Logger) Option {
	return func(r *Renderer) { r.log = log }
}

// WithTracer sets the tracer for render spans.
func WithTracer(tracer observability.Tracer) Option {
	return func(r *Renderer) { r.tracer = tracer }
}

// New constructs a Renderer over the given rasterizer.
func New(rast Rasterizer, opts ...Option) *Renderer {
	r := &Renderer{
		rast:     rast,
		maxScale: DefaultMaxScale,
		log:      observability.NopLogger{},
		tracer:   observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PageCount reports the number of pages in the document.
func (r *Renderer) PageCount() int { return r.rast.PageCount() }

// RenderPage fits the page into the viewport and rasterizes it. On success
// the renderer's bitmap, geometry and generation are updated; on failure the
// previous bitmap and geometry are retained and a *RenderError is returned.
func (r *Renderer) RenderPage(ctx context.Context, pageNumber int, viewportWidth, viewportHeight float64) (image.Image, PageGeometry, error) {
	ctx, span := r.tracer.StartSpan(ctx, "render.page")
	defer span.Finish()
	span.SetTag("page", pageNumber)
	start := time.Now()

	nw, nh, err := r.rast.PageSize(ctx, pageNumber)
	if err != nil {
		rerr := &RenderError{PageNumber: pageNumber, Err: err}
		span.SetError(rerr)
		r.log.Warn("page size lookup failed",
			observability.Int("page", pageNumber), observability.Error("err", err))
		return r.bitmap, r.geometry, rerr
	}

	scale := FitScale(nw, nh, viewportWidth, viewportHeight, r.maxScale)
	if scale <= 0 {
		rerr := &RenderError{PageNumber: pageNumber, Err: fmt.Errorf("page has no area (%gx%g)", nw, nh)}
		span.SetError(rerr)
		return r.bitmap, r.geometry, rerr
	}

	bitmap, err := r.rast.Render(ctx, pageNumber, scale)
	if err != nil {
		rerr := &RenderError{PageNumber: pageNumber, Err: err}
		span.SetError(rerr)
		r.log.Warn("rasterization failed",
			observability.Int("page", pageNumber), observability.Error("err", err))
		return r.bitmap, r.geometry, rerr
	}

	r.bitmap = bitmap
	r.geometry = PageGeometry{
		PageNumber:    pageNumber,
		NaturalWidth:  nw,
		NaturalHeight: nh,
		RenderScale:   scale,
		PixelWidth:    nw * scale,
		PixelHeight:   nh * scale,
	}
	r.generation++

	r.log.Debug("page rendered",
		observability.Int("page", pageNumber),
		observability.Float64("scale", scale),
		observability.Float64(observability.MetricRenderTime, time.Since(start).Seconds()))
	return r.bitmap, r.geometry, nil
}

// Bitmap returns the last successfully rendered bitmap, or nil before the
// first render.
func (r *Renderer) Bitmap() image.Image { return r.bitmap }

// Geometry returns the geometry of the last successful render.
func (r *Renderer) Geometry() PageGeometry { return r.geometry }

// Generation increments on every successful render. Gestures capture it when
// they begin so updates against a superseded bitmap can be invalidated.
func (r *Renderer) Generation() uint64 { return r.generation }

// ComposePreview draws the signature image over a copy of the current page
// bitmap at the given container-space rectangle. canvasOrigin is the bitmap's
// offset within the container.
func (r *Renderer) ComposePreview(signature image.Image, screen geom.Rect, canvasOrigin geom.Point) (image.Image, error) {
	if r.bitmap == nil {
		return nil, fmt.Errorf("compose preview: no page rendered")
	}
	if signature == nil || screen.IsEmpty() {
		return nil, fmt.Errorf("compose preview: nothing to draw")
	}

	base := r.bitmap.Bounds()
	out := image.NewRGBA(base)
	xdraw.Draw(out, base, r.bitmap, base.Min, xdraw.Src)

	target := image.Rect(
		base.Min.X+int(screen.X-canvasOrigin.X),
		base.Min.Y+int(screen.Y-canvasOrigin.Y),
		base.Min.X+int(screen.Right()-canvasOrigin.X),
		base.Min.Y+int(screen.Bottom()-canvasOrigin.Y),
	)
	xdraw.ApproxBiLinear.Scale(out, target, signature, signature.Bounds(), xdraw.Over, nil)
	return out, nil
}
