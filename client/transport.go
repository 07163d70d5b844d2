package client

import (
	"context"
	"net/http"
	"strconv"
)

// RequestMeta is propagated via context into outgoing HTTP requests so
// intermediaries (gateways, the workflow-automation engine) can correlate
// calls with the document they concern.
type RequestMeta struct {
	DocumentID string
	PageNumber int
}

type requestMetaKey struct{}

var ctxRequestMetaKey = &requestMetaKey{}

// WithRequestMeta merges the provided meta into any existing meta on ctx.
// Zero values do not overwrite existing values.
func WithRequestMeta(ctx context.Context, add RequestMeta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	cur := RequestMetaFromContext(ctx)
	if add.DocumentID != "" {
		cur.DocumentID = add.DocumentID
	}
	if add.PageNumber != 0 {
		cur.PageNumber = add.PageNumber
	}
	return context.WithValue(ctx, ctxRequestMetaKey, cur)
}

// RequestMetaFromContext returns the meta stored on ctx, or the zero value.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	m, ok := ctx.Value(ctxRequestMetaKey).(RequestMeta)
	if !ok {
		return RequestMeta{}
	}
	return m
}

// metaTransport injects correlation headers into outgoing requests at the
// HTTP transport layer, so individual call sites never touch headers.
type metaTransport struct {
	base http.RoundTripper
}

func (t *metaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req != nil {
		meta := RequestMetaFromContext(req.Context())

		// Do not overwrite headers if already set by the caller.
		if req.Header.Get("X-Document-ID") == "" && meta.DocumentID != "" {
			req.Header.Set("X-Document-ID", meta.DocumentID)
		}
		if req.Header.Get("X-Page-Number") == "" && meta.PageNumber != 0 {
			req.Header.Set("X-Page-Number", strconv.Itoa(meta.PageNumber))
		}
	}
	return base.RoundTrip(req)
}
