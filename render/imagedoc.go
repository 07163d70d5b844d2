package render

import (
	"context"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// ImageRasterizer serves a document from pre-rendered page bitmaps, for
// hosts that rasterize out of process (pdftoppm, a rendering service) and
// hand the engine finished images. baseScale is the scale the supplied
// bitmaps were rendered at; natural page sizes are derived from it.
type ImageRasterizer struct {
	pages     []image.Image
	baseScale float64
}

// NewImageRasterizer wraps pre-rendered page bitmaps. Pages are 1-based in
// the Rasterizer API, so pages[0] is page 1.
func NewImageRasterizer(pages []image.Image, baseScale float64) (*ImageRasterizer, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("image rasterizer: no pages")
	}
	if baseScale <= 0 {
		return nil, fmt.Errorf("image rasterizer: base scale %g", baseScale)
	}
	for i, p := range pages {
		if p == nil || p.Bounds().Empty() {
			return nil, fmt.Errorf("image rasterizer: page %d is empty", i+1)
		}
	}
	return &ImageRasterizer{pages: pages, baseScale: baseScale}, nil
}

func (r *ImageRasterizer) PageCount() int { return len(r.pages) }

func (r *ImageRasterizer) page(pageNumber int) (image.Image, error) {
	if pageNumber < 1 || pageNumber > len(r.pages) {
		return nil, fmt.Errorf("image rasterizer: no page %d", pageNumber)
	}
	return r.pages[pageNumber-1], nil
}

func (r *ImageRasterizer) PageSize(_ context.Context, pageNumber int) (float64, float64, error) {
	p, err := r.page(pageNumber)
	if err != nil {
		return 0, 0, err
	}
	b := p.Bounds()
	return float64(b.Dx()) / r.baseScale, float64(b.Dy()) / r.baseScale, nil
}

// Render resamples the stored bitmap to the requested scale. Requests at the
// base scale return the stored bitmap unscaled.
func (r *ImageRasterizer) Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, fmt.Errorf("image rasterizer: scale %g", scale)
	}
	p, err := r.page(pageNumber)
	if err != nil {
		return nil, err
	}
	if scale == r.baseScale {
		return p, nil
	}
	b := p.Bounds()
	w := int(float64(b.Dx()) * scale / r.baseScale)
	h := int(float64(b.Dy()) * scale / r.baseScale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), p, b, xdraw.Src, nil)
	return out, nil
}
