// Package client implements the HTTP contracts the placement engine needs
// from its external collaborators: the document/storage API (upload,
// signature assets, commit) and the workflow-automation engine (AI position
// detection, signing-request dispatch). Internals of those services are out
// of scope; only the request/response shapes live here.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/docsops/signflow/detect"
	"github.com/docsops/signflow/distribute"
	"github.com/docsops/signflow/observability"
)

// DefaultTimeout bounds every request issued by the client.
const DefaultTimeout = 30 * time.Second

// StatusError reports a non-2xx response, carrying the server's message when
// one was provided.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// SignatureAsset is one stored signature image selectable for placement.
type SignatureAsset struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	ImageURL  string `json:"image_url"`
	IsDefault bool   `json:"is_default"`
}

// CommitRequest carries everything the server needs to burn a signature into
// the original PDF. Coordinates are integers in document space.
type CommitRequest struct {
	PDF              []byte
	Filename         string
	SignatureAssetID string
	PageNumber       int
	X                int
	Y                int
	Width            int
	Height           int
	PIN              string
}

// CommitResult is the server's reference to the signed artifact. Servers
// answer with either a direct URL or an id resolvable to one.
type CommitResult struct {
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Data        struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
	} `json:"data"`
}

// ArtifactRef returns the preferred reference to the signed artifact: the
// URL when present, otherwise the document id.
func (r CommitResult) ArtifactRef() string {
	if r.URL != "" {
		return r.URL
	}
	if r.DownloadURL != "" {
		return r.DownloadURL
	}
	return r.Data.Document.ID
}

// Client talks to the document API and the workflow-automation engine.
type Client struct {
	apiBaseURL     string
	webhookBaseURL string
	hc             *http.Client
	apiKey         string
	authToken      string
	log            observability.Logger
	tracer         observability.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The correlation
// transport is layered on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithAPIKey sets the key sent to the workflow-automation engine.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithAuthToken sets the bearer token for document-API calls.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(log observability.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTracer sets the tracer for request spans.
func WithTracer(tracer observability.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// New constructs a client for the given document-API and workflow-engine
// base URLs.
func New(apiBaseURL, webhookBaseURL string, opts ...Option) *Client {
	c := &Client{
		apiBaseURL:     apiBaseURL,
		webhookBaseURL: webhookBaseURL,
		hc:             &http.Client{Timeout: DefaultTimeout},
		log:            observability.NopLogger{},
		tracer:         observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hc.Transport = &metaTransport{base: c.hc.Transport}
	return c
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response %s: %w", req.URL.Path, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := serverMessage(body)
		c.log.Warn("request failed",
			observability.String("path", req.URL.Path),
			observability.Int("status", res.StatusCode))
		return &StatusError{StatusCode: res.StatusCode, Message: msg}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response %s: %w", req.URL.Path, err)
	}
	return nil
}

func serverMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		return envelope.Message
	}
	return ""
}

func (c *Client) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.do(req, out)
}

// UploadDocument stores the PDF and creates its document record, returning
// the server-assigned document id required by detection and commit.
func (c *Client) UploadDocument(ctx context.Context, filename string, pdf []byte) (string, error) {
	ctx, span := c.tracer.StartSpan(ctx, "client.upload")
	defer span.Finish()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return "", fmt.Errorf("write upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/documents/upload-to-queue", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	var uploaded struct {
		Data struct {
			Uploaded []struct {
				Name     string `json:"name"`
				FilePath string `json:"file_path"`
				MimeType string `json:"mime_type"`
				Size     int64  `json:"size"`
			} `json:"uploaded"`
		} `json:"data"`
	}
	if err := c.do(req, &uploaded); err != nil {
		span.SetError(err)
		return "", fmt.Errorf("upload to storage: %w", err)
	}
	if len(uploaded.Data.Uploaded) == 0 {
		err := fmt.Errorf("upload to storage: server accepted no files")
		span.SetError(err)
		return "", err
	}
	stored := uploaded.Data.Uploaded[0]

	var created struct {
		Data struct {
			Document struct {
				ID string `json:"id"`
			} `json:"document"`
		} `json:"data"`
	}
	payload := map[string]interface{}{
		"fileName": stored.Name,
		"filePath": stored.FilePath,
		"fileType": stored.MimeType,
		"fileSize": stored.Size,
		"title":    filename,
	}
	if err := c.postJSON(ctx, c.apiBaseURL+"/e-signature-ext/internal/create-test-request", payload, &created); err != nil {
		span.SetError(err)
		return "", fmt.Errorf("create document record: %w", err)
	}
	if created.Data.Document.ID == "" {
		err := fmt.Errorf("create document record: no id in response")
		span.SetError(err)
		return "", err
	}
	c.log.Info("document uploaded",
		observability.String("document_id", created.Data.Document.ID),
		observability.Int(observability.MetricUploadBytes, len(pdf)))
	return created.Data.Document.ID, nil
}

// ListSignatures returns the caller's stored signature assets.
func (c *Client) ListSignatures(ctx context.Context) ([]SignatureAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/e-signature-ext/user-signature/my-signatures", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	var envelope struct {
		Data []struct {
			ID        string `json:"id"`
			ImageURL  string `json:"image_url"`
			IsDefault bool   `json:"is_default"`
			Metadata  struct {
				Label string `json:"label"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := c.do(req, &envelope); err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	assets := make([]SignatureAsset, 0, len(envelope.Data))
	for _, d := range envelope.Data {
		assets = append(assets, SignatureAsset{
			ID:        d.ID,
			Label:     d.Metadata.Label,
			ImageURL:  d.ImageURL,
			IsDefault: d.IsDefault,
		})
	}
	return assets, nil
}

// DetectPositions asks the workflow-automation engine for AI-suggested
// placements. A response without success, or with no positions, yields an
// empty slice and no error.
func (c *Client) DetectPositions(ctx context.Context, documentID string) ([]detect.Candidate, error) {
	ctx, span := c.tracer.StartSpan(ctx, "client.detect")
	defer span.Finish()
	ctx = WithRequestMeta(ctx, RequestMeta{DocumentID: documentID})

	var envelope struct {
		Success           bool               `json:"success"`
		DetectedPositions []detect.Candidate `json:"detectedPositions"`
	}
	err := c.postJSON(ctx, c.webhookBaseURL+"/webhook/e-signature/ai-detect-positions",
		map[string]string{"documentId": documentID}, &envelope)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("detect positions: %w", err)
	}
	if !envelope.Success {
		return nil, nil
	}
	c.log.Debug("positions detected",
		observability.String("document_id", documentID),
		observability.Int(observability.MetricCandidateCount, len(envelope.DetectedPositions)))
	return envelope.DetectedPositions, nil
}

// CommitSignature submits the placement for server-side PDF mutation. PIN
// verification happens server-side; a rejection comes back as a StatusError.
func (c *Client) CommitSignature(ctx context.Context, creq CommitRequest) (CommitResult, error) {
	ctx, span := c.tracer.StartSpan(ctx, "client.commit")
	defer span.Finish()
	ctx = WithRequestMeta(ctx, RequestMeta{PageNumber: creq.PageNumber})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("pdfFile", creq.Filename)
	if err != nil {
		return CommitResult{}, fmt.Errorf("build commit form: %w", err)
	}
	if _, err := part.Write(creq.PDF); err != nil {
		return CommitResult{}, fmt.Errorf("write commit form: %w", err)
	}
	fields := map[string]string{
		"signatureId": creq.SignatureAssetID,
		"pageNumber":  strconv.Itoa(creq.PageNumber),
		"position":    "custom",
		"x":           strconv.Itoa(creq.X),
		"y":           strconv.Itoa(creq.Y),
		"width":       strconv.Itoa(creq.Width),
		"height":      strconv.Itoa(creq.Height),
		"pin":         creq.PIN,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return CommitResult{}, fmt.Errorf("write commit field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return CommitResult{}, fmt.Errorf("close commit form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBaseURL+"/e-signature-ext/user-signature/insert-signature-to-pdf", &buf)
	if err != nil {
		return CommitResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	var result CommitResult
	if err := c.do(req, &result); err != nil {
		span.SetError(err)
		return CommitResult{}, fmt.Errorf("commit signature: %w", err)
	}
	return result, nil
}

// CreateSignatureRequest persists a multi-party signing request and returns
// its id. Dispatch is a separate call; see SendSignatureRequest.
func (c *Client) CreateSignatureRequest(ctx context.Context, dreq distribute.Request) (string, error) {
	ctx, span := c.tracer.StartSpan(ctx, "client.distribute.create")
	defer span.Finish()
	ctx = WithRequestMeta(ctx, RequestMeta{DocumentID: dreq.DocumentID})

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, c.apiBaseURL+"/e-signature/signature-requests", dreq.Payload(), &envelope); err != nil {
		span.SetError(err)
		return "", fmt.Errorf("create signature request: %w", err)
	}
	if !envelope.Success || envelope.Data.ID == "" {
		err := fmt.Errorf("create signature request: server did not return an id")
		span.SetError(err)
		return "", err
	}
	return envelope.Data.ID, nil
}

// SendSignatureRequest triggers e-mail dispatch for a previously created
// signing request. Callers treat failures as best-effort: the request
// itself remains persisted.
func (c *Client) SendSignatureRequest(ctx context.Context, requestID string) error {
	ctx, span := c.tracer.StartSpan(ctx, "client.distribute.send")
	defer span.Finish()

	var envelope struct {
		Success bool `json:"success"`
	}
	err := c.postJSON(ctx, c.webhookBaseURL+"/webhook/e-signature/send-request",
		map[string]string{"requestId": requestID}, &envelope)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("send signature request: %w", err)
	}
	return nil
}
