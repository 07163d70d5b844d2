// Command signflow runs a signing session from the terminal: it uploads a
// PDF, optionally asks for automatic signature-position detection, commits
// the signature at the chosen placement and sends the follow-up signing
// request. Page bitmaps are supplied as pre-rendered images (for example
// from pdftoppm), since rasterization happens out of process.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docsops/signflow/client"
	"github.com/docsops/signflow/render"
	"github.com/docsops/signflow/rules"
	"github.com/docsops/signflow/workflow"
)

type options struct {
	apiURL     string
	webhookURL string
	token      string
	apiKey     string

	pdfPath   string
	pagesGlob string
	pageScale float64

	signatureID string
	pin         string
	skipDetect  bool
	selector    string

	signers string
	message string
	title   string
	expires string

	timeout time.Duration
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.apiURL, "api", "", "document API base URL (required)")
	flag.StringVar(&o.webhookURL, "webhook", "", "workflow-engine base URL (required)")
	flag.StringVar(&o.token, "token", os.Getenv("SIGNFLOW_TOKEN"), "bearer token for the document API")
	flag.StringVar(&o.apiKey, "api-key", os.Getenv("SIGNFLOW_API_KEY"), "API key for the workflow engine")
	flag.StringVar(&o.pdfPath, "file", "", "PDF file to sign (required)")
	flag.StringVar(&o.pagesGlob, "pages", "", "glob of pre-rendered page images in page order (required)")
	flag.Float64Var(&o.pageScale, "page-scale", 1, "scale the page images were rendered at")
	flag.StringVar(&o.signatureID, "signature", "", "signature asset id (default: the account default)")
	flag.StringVar(&o.pin, "pin", "", "signing PIN (required)")
	flag.BoolVar(&o.skipDetect, "skip-detect", false, "skip automatic position detection")
	flag.StringVar(&o.selector, "selector", "", "JavaScript candidate-selection expression")
	flag.StringVar(&o.signers, "signers", "", "comma-separated signer e-mail addresses")
	flag.StringVar(&o.message, "message", "", "Markdown message for signers")
	flag.StringVar(&o.title, "title", "", "signing-request title (default: the file name)")
	flag.StringVar(&o.expires, "expires", "", "signing-request deadline (RFC 3339)")
	flag.DurationVar(&o.timeout, "timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()
	if o.apiURL == "" || o.webhookURL == "" || o.pdfPath == "" || o.pagesGlob == "" || o.pin == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "signflow: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	pdf, err := os.ReadFile(o.pdfPath)
	if err != nil {
		return err
	}
	pages, err := loadPages(o.pagesGlob)
	if err != nil {
		return err
	}

	api := client.New(o.apiURL, o.webhookURL,
		client.WithAuthToken(o.token),
		client.WithAPIKey(o.apiKey))

	opts := []workflow.Option{}
	if o.selector != "" {
		opts = append(opts, workflow.WithSelector(rules.NewJSSelector(o.selector)))
	}
	w := workflow.New(api, func([]byte) (render.Rasterizer, error) {
		return render.NewImageRasterizer(pages, o.pageScale)
	}, opts...)

	if err := w.AcceptFile(ctx, filepath.Base(o.pdfPath), pdf); err != nil {
		return err
	}
	fmt.Printf("uploaded %s as document %s\n", filepath.Base(o.pdfPath), w.DocumentID())

	if o.skipDetect {
		if err := w.SkipDetection(); err != nil {
			return err
		}
	} else {
		if err := w.RequestDetection(ctx); err != nil {
			return err
		}
		for _, c := range w.Candidates() {
			fmt.Printf("candidate: page %d at (%.0f, %.0f) %s\n", c.Page, c.X, c.Y, c.Reason)
		}
	}

	if o.signatureID != "" {
		if err := w.SelectSignature(o.signatureID); err != nil {
			return err
		}
	}
	w.SetPIN(o.pin)

	doc := w.Session().DocumentRect()
	fmt.Printf("placing signature on page %d at (%d, %d) %dx%d\n",
		doc.Page, doc.X, doc.Y, doc.Width, doc.Height)
	if err := w.Commit(ctx); err != nil {
		return err
	}
	fmt.Printf("signed: %s\n", w.ArtifactRef())

	signers := splitSigners(o.signers)
	if len(signers) == 0 {
		return w.SkipDistribution()
	}
	// The session starts with one empty signatory row; fill it before adding.
	for i, email := range signers {
		if i > 0 {
			w.AddSignatory()
		}
		if err := w.SetSignatory(i, email, ""); err != nil {
			return err
		}
	}
	w.SetMessage(o.message)
	w.SetTitle(o.title)
	if o.expires != "" {
		t, err := time.Parse(time.RFC3339, o.expires)
		if err != nil {
			return fmt.Errorf("parse -expires: %w", err)
		}
		w.SetExpiry(t)
	}
	if err := w.Distribute(ctx); err != nil {
		return err
	}
	fmt.Printf("signing request %s sent to %d signer(s)\n", w.RequestID(), len(signers))
	return nil
}

func loadPages(glob string) ([]image.Image, error) {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("bad -pages glob: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no page images match %q", glob)
	}
	sort.Strings(paths)
	pages := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func splitSigners(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
