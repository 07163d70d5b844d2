// Package workflow drives a signing session end to end: upload and
// validation of the PDF, optional automatic position detection, interactive
// placement, the signature commit, and distribution of the follow-up signing
// request. It owns the stage machine; the heavy lifting is delegated to the
// render, placement, detect, rules, client and distribute packages.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/docsops/signflow/client"
	"github.com/docsops/signflow/detect"
	"github.com/docsops/signflow/distribute"
	"github.com/docsops/signflow/geom"
	"github.com/docsops/signflow/observability"
	"github.com/docsops/signflow/placement"
	"github.com/docsops/signflow/render"
	"github.com/docsops/signflow/rules"
)

// Stage identifies where a signing session stands.
type Stage int

const (
	StageAwaitingUpload Stage = iota
	StageUploading
	StageReadyForDetection
	StageDetecting
	StagePlacing
	StageCommitting
	StageDistributing
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingUpload:
		return "awaiting-upload"
	case StageUploading:
		return "uploading"
	case StageReadyForDetection:
		return "ready-for-detection"
	case StageDetecting:
		return "detecting"
	case StagePlacing:
		return "placing"
	case StageCommitting:
		return "committing"
	case StageDistributing:
		return "distributing"
	case StageClosed:
		return "closed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Upload acceptance limits.
const (
	MaxUploadBytes = 10 << 20
	pdfHeader      = "%PDF-"
	minPINLength   = 4
)

// ValidationError reports a user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrCommitInFlight is returned when Commit is called while a previous commit
// is still running.
var ErrCommitInFlight = errors.New("workflow: commit already in flight")

// ErrStaleResult is returned when a detection result lands after the session
// moved on (reset or a newer detection request). The result is discarded.
var ErrStaleResult = errors.New("workflow: stale detection result discarded")

// UploadStatus reports where the upload stands, for host UIs.
type UploadStatus int

const (
	UploadIdle UploadStatus = iota
	UploadInProgress
	UploadSucceeded
	UploadFailed
)

func (s UploadStatus) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadInProgress:
		return "uploading"
	case UploadSucceeded:
		return "success"
	case UploadFailed:
		return "error"
	}
	return fmt.Sprintf("upload-status(%d)", int(s))
}

// StageError reports an operation attempted in the wrong stage.
type StageError struct {
	Op    string
	Stage Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("workflow: cannot %s in stage %s", e.Op, e.Stage)
}

// API is the slice of the service client the workflow needs. *client.Client
// satisfies it.
type API interface {
	UploadDocument(ctx context.Context, filename string, pdf []byte) (string, error)
	ListSignatures(ctx context.Context) ([]client.SignatureAsset, error)
	CommitSignature(ctx context.Context, req client.CommitRequest) (client.CommitResult, error)
	CreateSignatureRequest(ctx context.Context, req distribute.Request) (string, error)
	SendSignatureRequest(ctx context.Context, requestID string) error
}

// RasterizerFactory opens an uploaded PDF for rendering.
type RasterizerFactory func(pdf []byte) (render.Rasterizer, error)

// Workflow is one signing session. It is not safe for concurrent use; hosts
// serialize calls the same way a UI event loop would.
type Workflow struct {
	api       API
	openPDF   RasterizerFactory
	engine    detect.Engine
	selector  rules.Selector
	log       observability.Logger
	tracer    observability.Tracer
	viewportW float64
	viewportH float64

	stage      Stage
	filename   string
	pdf        []byte
	documentID string

	renderer *render.Renderer
	session  *placement.Session

	assets   []client.SignatureAsset
	assetID  string
	pin      string
	message  string
	expires  time.Time
	signers  []distribute.Signatory
	title    string

	candidates []detect.Candidate
	detectSeq  uint64

	uploadStatus  UploadStatus
	uploadMessage string

	committing  bool
	artifactRef string
	requestID   string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithDetectionEngine overrides the default detection engine.
func WithDetectionEngine(engine detect.Engine) Option {
	return func(w *Workflow) { w.engine = engine }
}

// WithSelector overrides how one candidate is chosen from a detection result.
func WithSelector(sel rules.Selector) Option {
	return func(w *Workflow) { w.selector = sel }
}

// WithLogger sets the session logger.
func WithLogger(log observability.Logger) Option {
	return func(w *Workflow) { w.log = log }
}

// WithTracer sets the session tracer.
func WithTracer(tracer observability.Tracer) Option {
	return func(w *Workflow) { w.tracer = tracer }
}

// WithViewport sets the render viewport size in container pixels.
func WithViewport(width, height float64) Option {
	return func(w *Workflow) { w.viewportW, w.viewportH = width, height }
}

// New creates a session in StageAwaitingUpload with one empty signatory slot
// and the default message.
func New(api API, openPDF RasterizerFactory, opts ...Option) *Workflow {
	w := &Workflow{
		api:       api,
		openPDF:   openPDF,
		engine:    detect.DefaultEngine(),
		selector:  rules.FirstCandidate{},
		log:       observability.NopLogger{},
		tracer:    observability.NopTracer(),
		viewportW: 800,
		viewportH: 1000,
		signers:   distribute.Add(nil),
		message:   distribute.DefaultMessage,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stage returns the current stage.
func (w *Workflow) Stage() Stage { return w.stage }

// Session returns the live placement session, nil before a document is
// loaded.
func (w *Workflow) Session() *placement.Session { return w.session }

// Renderer returns the page renderer, nil before a document is loaded.
func (w *Workflow) Renderer() *render.Renderer { return w.renderer }

// DocumentID returns the server-assigned id of the uploaded document.
func (w *Workflow) DocumentID() string { return w.documentID }

// UploadStatus reports the state of the most recent upload attempt.
func (w *Workflow) UploadStatus() (UploadStatus, string) {
	return w.uploadStatus, w.uploadMessage
}

// Candidates returns the most recent detection result.
func (w *Workflow) Candidates() []detect.Candidate { return w.candidates }

// ArtifactRef returns the reference to the signed artifact after a
// successful commit.
func (w *Workflow) ArtifactRef() string { return w.artifactRef }

// RequestID returns the id of the created signing request, if any.
func (w *Workflow) RequestID() string { return w.requestID }

// ValidateFile checks a prospective upload without touching the network:
// extension, header magic, and size.
func ValidateFile(filename string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return &ValidationError{Field: "file", Message: "only PDF files are accepted"}
	}
	if len(data) > MaxUploadBytes {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("file exceeds %d bytes", MaxUploadBytes)}
	}
	if len(data) < len(pdfHeader) || string(data[:len(pdfHeader)]) != pdfHeader {
		return &ValidationError{Field: "file", Message: "not a PDF file"}
	}
	return nil
}

// AcceptFile validates and uploads the PDF, opens it for rendering, renders
// the first page, starts the placement session and loads the caller's
// signature assets. On any failure the session returns to
// StageAwaitingUpload.
func (w *Workflow) AcceptFile(ctx context.Context, filename string, data []byte) error {
	if w.stage != StageAwaitingUpload {
		return &StageError{Op: "accept file", Stage: w.stage}
	}
	if err := ValidateFile(filename, data); err != nil {
		return err
	}

	ctx, span := w.tracer.StartSpan(ctx, "workflow.upload")
	defer span.Finish()
	w.stage = StageUploading
	w.uploadStatus = UploadInProgress
	w.uploadMessage = fmt.Sprintf("uploading %s", filename)

	fail := func(err error) error {
		w.stage = StageAwaitingUpload
		w.uploadStatus = UploadFailed
		w.uploadMessage = err.Error()
		span.SetError(err)
		return err
	}

	docID, err := w.api.UploadDocument(ctx, filename, data)
	if err != nil {
		return fail(fmt.Errorf("accept file: %w", err))
	}

	rast, err := w.openPDF(data)
	if err != nil {
		return fail(fmt.Errorf("accept file: open pdf: %w", err))
	}
	renderer := render.New(rast, render.WithLogger(w.log), render.WithTracer(w.tracer))
	_, pg, err := renderer.RenderPage(ctx, 1, w.viewportW, w.viewportH)
	if err != nil {
		return fail(fmt.Errorf("accept file: %w", err))
	}

	assets, err := w.api.ListSignatures(ctx)
	if err != nil {
		return fail(fmt.Errorf("accept file: %w", err))
	}

	w.filename = filename
	w.pdf = data
	w.documentID = docID
	w.renderer = renderer
	w.session = placement.NewSession(pg, w.canvasOrigin(pg), geom.Point{}, renderer.Generation())
	w.assets = assets
	for _, a := range assets {
		if a.IsDefault {
			w.assetID = a.ID
			break
		}
	}
	w.stage = StageReadyForDetection
	w.uploadStatus = UploadSucceeded
	w.uploadMessage = fmt.Sprintf("%s uploaded", filename)
	w.log.Info("document accepted",
		observability.String("document_id", docID),
		observability.Int(observability.MetricUploadBytes, len(data)))
	return nil
}

// canvasOrigin centers the page bitmap horizontally in the viewport.
func (w *Workflow) canvasOrigin(pg render.PageGeometry) geom.Point {
	x := (w.viewportW - pg.PixelWidth) / 2
	if x < 0 {
		x = 0
	}
	return geom.Point{X: x}
}

// RequestDetection asks the detection engine for candidate placements and
// applies the selected one. An empty result is not an error; the session
// simply proceeds to manual placement. A result arriving after the session
// moved on (reset, new detection) is discarded.
func (w *Workflow) RequestDetection(ctx context.Context) error {
	if w.stage != StageReadyForDetection {
		return &StageError{Op: "request detection", Stage: w.stage}
	}
	ctx, span := w.tracer.StartSpan(ctx, "workflow.detect")
	defer span.Finish()

	w.stage = StageDetecting
	w.detectSeq++
	seq := w.detectSeq
	start := time.Now()

	cands, err := w.engine.Detect(ctx, detect.Request{DocumentID: w.documentID})
	if seq != w.detectSeq {
		w.log.Debug("stale detection result discarded",
			observability.Int(observability.MetricStaleDiscards, 1))
		return ErrStaleResult
	}
	if err != nil {
		// Detection is best-effort: fall through to manual placement.
		w.log.Warn("detection failed", observability.Error("err", err))
		span.SetError(err)
		w.stage = StagePlacing
		return nil
	}
	w.candidates = cands
	w.stage = StagePlacing
	w.log.Debug("detection finished",
		observability.Int(observability.MetricCandidateCount, len(cands)),
		observability.Float64(observability.MetricDetectTime, time.Since(start).Seconds()))

	if len(cands) == 0 {
		return nil
	}
	idx, err := w.selector.Select(ctx, cands)
	if err != nil {
		w.log.Warn("candidate selection failed", observability.Error("err", err))
		return nil
	}
	// The suggestion is a default, not a requirement: a candidate the session
	// rejects (off-page rect, unrenderable page) leaves manual placement intact.
	if err := w.ApplyCandidate(ctx, cands[idx]); err != nil {
		w.log.Warn("candidate not applied", observability.Error("err", err))
	}
	return nil
}

// SkipDetection proceeds straight to manual placement.
func (w *Workflow) SkipDetection() error {
	if w.stage != StageReadyForDetection {
		return &StageError{Op: "skip detection", Stage: w.stage}
	}
	w.stage = StagePlacing
	return nil
}

// ApplyCandidate navigates to the candidate's page and places the overlay on
// its rectangle.
func (w *Workflow) ApplyCandidate(ctx context.Context, c detect.Candidate) error {
	if w.session == nil {
		return &StageError{Op: "apply candidate", Stage: w.stage}
	}
	if c.Page != w.session.RenderedPage() {
		if err := w.GoToPage(ctx, c.Page); err != nil {
			return fmt.Errorf("apply candidate: %w", err)
		}
	}
	// Engines may omit a size; fall back to the default overlay size.
	width, height := int(c.Width), int(c.Height)
	if width <= 0 || height <= 0 {
		width = int(placement.DefaultScreenRect.Width)
		height = int(placement.DefaultScreenRect.Height)
	}
	return w.session.SetFromDocument(placement.Rect{
		Page:   c.Page,
		X:      int(c.X),
		Y:      int(c.Y),
		Width:  width,
		Height: height,
	})
}

// GoToPage renders another page and rebinds the placement session's viewport
// geometry. The placement itself stays on its own page.
func (w *Workflow) GoToPage(ctx context.Context, pageNumber int) error {
	if w.renderer == nil {
		return &StageError{Op: "navigate", Stage: w.stage}
	}
	if pageNumber < 1 || pageNumber > w.renderer.PageCount() {
		return &ValidationError{Field: "page", Message: fmt.Sprintf("page %d of %d", pageNumber, w.renderer.PageCount())}
	}
	_, pg, err := w.renderer.RenderPage(ctx, pageNumber, w.viewportW, w.viewportH)
	if err != nil {
		return err
	}
	w.session.UpdateGeometry(pg, w.canvasOrigin(pg), geom.Point{}, w.renderer.Generation())
	return nil
}

// SetViewport re-fits the current page after a viewport resize.
func (w *Workflow) SetViewport(ctx context.Context, width, height float64) error {
	w.viewportW, w.viewportH = width, height
	if w.renderer == nil {
		return nil
	}
	_, pg, err := w.renderer.RenderPage(ctx, w.session.RenderedPage(), width, height)
	if err != nil {
		return err
	}
	w.session.UpdateGeometry(pg, w.canvasOrigin(pg), geom.Point{}, w.renderer.Generation())
	return nil
}

// Assets returns the caller's stored signature assets.
func (w *Workflow) Assets() []client.SignatureAsset { return w.assets }

// SelectedSignature returns the id of the chosen signature asset.
func (w *Workflow) SelectedSignature() string { return w.assetID }

// SelectSignature chooses a stored signature asset by id.
func (w *Workflow) SelectSignature(id string) error {
	for _, a := range w.assets {
		if a.ID == id {
			w.assetID = id
			return nil
		}
	}
	return &ValidationError{Field: "signature", Message: fmt.Sprintf("unknown signature %q", id)}
}

// SetPIN stores the signing PIN for the commit. Verification is server-side.
func (w *Workflow) SetPIN(pin string) { w.pin = pin }

// Commit submits the placement for server-side signing. Local validation
// happens before any network call: a signature must be selected and the PIN
// long enough. On server failure the session returns to StagePlacing with
// the placement intact.
func (w *Workflow) Commit(ctx context.Context) error {
	if w.stage != StagePlacing {
		return &StageError{Op: "commit", Stage: w.stage}
	}
	if w.committing {
		return ErrCommitInFlight
	}
	if w.assetID == "" {
		return &ValidationError{Field: "signature", Message: "no signature selected"}
	}
	if len(w.pin) < minPINLength {
		return &ValidationError{Field: "pin", Message: fmt.Sprintf("PIN must be at least %d characters", minPINLength)}
	}

	ctx, span := w.tracer.StartSpan(ctx, "workflow.commit")
	defer span.Finish()
	w.committing = true
	defer func() { w.committing = false }()
	w.stage = StageCommitting
	w.session.CancelGestures()
	start := time.Now()

	doc := w.session.DocumentRect()
	res, err := w.api.CommitSignature(ctx, client.CommitRequest{
		PDF:              w.pdf,
		Filename:         w.filename,
		SignatureAssetID: w.assetID,
		PageNumber:       doc.Page,
		X:                doc.X,
		Y:                doc.Y,
		Width:            doc.Width,
		Height:           doc.Height,
		PIN:              w.pin,
	})
	if err != nil {
		w.stage = StagePlacing
		span.SetError(err)
		return fmt.Errorf("commit: %w", err)
	}

	w.artifactRef = res.ArtifactRef()
	w.stage = StageDistributing
	w.log.Info("signature committed",
		observability.String("document_id", w.documentID),
		observability.Int("page", doc.Page),
		observability.Float64(observability.MetricCommitTime, time.Since(start).Seconds()))
	return nil
}

// AddSignatory appends an empty signatory slot.
func (w *Workflow) AddSignatory() { w.signers = distribute.Add(w.signers) }

// RemoveSignatory deletes the signatory at index i. The last remaining row
// is kept.
func (w *Workflow) RemoveSignatory(i int) {
	if len(w.signers) <= 1 {
		return
	}
	w.signers = distribute.Remove(w.signers, i)
}

// MoveSignatory reorders the signatory at index i to index j.
func (w *Workflow) MoveSignatory(i, j int) { w.signers = distribute.Move(w.signers, i, j) }

// SetSignatory fills in the signatory at index i.
func (w *Workflow) SetSignatory(i int, email, name string) error {
	if i < 0 || i >= len(w.signers) {
		return &ValidationError{Field: "signatory", Message: fmt.Sprintf("no signatory at index %d", i)}
	}
	w.signers[i].Email = email
	w.signers[i].Name = name
	return nil
}

// Signatories returns the working signatory list.
func (w *Workflow) Signatories() []distribute.Signatory { return w.signers }

// SetMessage stores the Markdown message sent to signers.
func (w *Workflow) SetMessage(markdown string) { w.message = markdown }

// SetExpiry stores the signing-request deadline.
func (w *Workflow) SetExpiry(t time.Time) { w.expires = t }

// SetTitle stores the signing-request title. Defaults to the filename.
func (w *Workflow) SetTitle(title string) { w.title = title }

// Distribute creates the follow-up signing request for the remaining
// signatories and closes the session. Creating the request is the
// authoritative step; the e-mail dispatch afterwards is best-effort and its
// failure only logs.
func (w *Workflow) Distribute(ctx context.Context) error {
	if w.stage != StageDistributing {
		return &StageError{Op: "distribute", Stage: w.stage}
	}
	valid := distribute.ValidSignatories(w.signers)
	if len(valid) == 0 {
		return &ValidationError{Field: "signatories", Message: "at least one signer with a valid e-mail is required"}
	}
	msg, err := distribute.RenderMessage(w.message)
	if err != nil {
		return fmt.Errorf("distribute: %w", err)
	}

	ctx, span := w.tracer.StartSpan(ctx, "workflow.distribute")
	defer span.Finish()
	start := time.Now()

	title := w.title
	if title == "" {
		title = w.filename
	}
	reqID, err := w.api.CreateSignatureRequest(ctx, distribute.Request{
		DocumentID:  w.documentID,
		Title:       title,
		Signatories: valid,
		Message:     msg,
		ExpiresAt:   w.expires,
	})
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("distribute: %w", err)
	}
	w.requestID = reqID
	w.stage = StageClosed

	if err := w.api.SendSignatureRequest(ctx, reqID); err != nil {
		w.log.Warn("signing request created but dispatch failed",
			observability.String("request_id", reqID), observability.Error("err", err))
	}
	w.log.Info("signing request distributed",
		observability.String("request_id", reqID),
		observability.Int("signers", len(valid)),
		observability.Float64(observability.MetricDistributeTime, time.Since(start).Seconds()))
	return nil
}

// SkipDistribution closes the session without creating a signing request.
func (w *Workflow) SkipDistribution() error {
	if w.stage != StageDistributing {
		return &StageError{Op: "skip distribution", Stage: w.stage}
	}
	w.stage = StageClosed
	return nil
}

// Reset abandons the session and returns to StageAwaitingUpload. Any
// detection still in flight is discarded when it lands.
func (w *Workflow) Reset() {
	if w.session != nil {
		w.session.CancelGestures()
	}
	w.detectSeq++
	*w = Workflow{
		api:       w.api,
		openPDF:   w.openPDF,
		engine:    w.engine,
		selector:  w.selector,
		log:       w.log,
		tracer:    w.tracer,
		viewportW: w.viewportW,
		viewportH: w.viewportH,
		detectSeq: w.detectSeq,
		signers:   distribute.Add(nil),
		message:   distribute.DefaultMessage,
	}
}
