// Package distribute models the multi-party signing request built after a
// signature commit: the ordered signatory list, the optional message (written
// in Markdown, delivered as HTML mail with a plain-text alternative), and the
// payload shape the signature-request API expects.
package distribute

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
)

// DefaultMessage is the note sent to signers when the requester writes none.
const DefaultMessage = "Please sign this document."

// Signatory is one requested signer. Order is 1-based signing order.
type Signatory struct {
	Email string
	Name  string
	Order int
}

// DisplayName returns the name to address the signatory by, falling back to
// the local part of the e-mail address.
func (s Signatory) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if at := strings.Index(s.Email, "@"); at > 0 {
		return s.Email[:at]
	}
	return s.Email
}

// Valid reports whether the signatory can receive a request. The only hard
// requirement is an address containing "@"; deeper validation is left to the
// mail layer.
func (s Signatory) Valid() bool {
	return strings.Contains(s.Email, "@")
}

// ValidSignatories filters out entries without a usable address, fills
// missing names from the address local part, and reassigns contiguous
// 1-based order. The input slice is not modified.
func ValidSignatories(in []Signatory) []Signatory {
	out := make([]Signatory, 0, len(in))
	for _, s := range in {
		if !s.Valid() {
			continue
		}
		s.Name = s.DisplayName()
		s.Order = len(out) + 1
		out = append(out, s)
	}
	return out
}

// Add appends a blank signatory slot at the end of the list.
func Add(in []Signatory) []Signatory {
	return append(in, Signatory{Order: len(in) + 1})
}

// Remove deletes the signatory at index i and renumbers the rest. Out of
// range indices return the list unchanged.
func Remove(in []Signatory, i int) []Signatory {
	if i < 0 || i >= len(in) {
		return in
	}
	out := make([]Signatory, 0, len(in)-1)
	out = append(out, in[:i]...)
	out = append(out, in[i+1:]...)
	for j := range out {
		out[j].Order = j + 1
	}
	return out
}

// Move shifts the signatory at index i to index j, renumbering order. Out of
// range indices return the list unchanged.
func Move(in []Signatory, i, j int) []Signatory {
	if i < 0 || i >= len(in) || j < 0 || j >= len(in) {
		return in
	}
	out := make([]Signatory, len(in))
	copy(out, in)
	s := out[i]
	out = append(out[:i], out[i+1:]...)
	out = append(out[:j], append([]Signatory{s}, out[j:]...)...)
	for k := range out {
		out[k].Order = k + 1
	}
	return out
}

// Message is the rendered form of the requester's note to signers.
type Message struct {
	HTML string
	Text string
}

// RenderMessage converts a Markdown-authored message into the HTML body sent
// to signers plus a plain-text alternative derived from that HTML.
func RenderMessage(markdown string) (Message, error) {
	if strings.TrimSpace(markdown) == "" {
		return Message{}, nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return Message{}, fmt.Errorf("render message: %w", err)
	}
	text, err := htmlToText(buf.String())
	if err != nil {
		return Message{}, fmt.Errorf("render message text: %w", err)
	}
	return Message{HTML: buf.String(), Text: text}, nil
}

// htmlToText extracts readable text from rendered HTML, one line per block
// element.
func htmlToText(s string) (string, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "li", "h1", "h2", "h3", "h4", "h5", "h6", "br", "blockquote", "pre":
				b.WriteString("\n")
			}
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String()), nil
}

// Request is a fully assembled signing request ready for the API.
type Request struct {
	DocumentID  string
	Title       string
	Signatories []Signatory
	Message     Message
	ExpiresAt   time.Time
}

// Payload returns the JSON-shaped body for the create-request endpoint.
func (r Request) Payload() map[string]interface{} {
	signers := make([]map[string]interface{}, 0, len(r.Signatories))
	for _, s := range r.Signatories {
		signers = append(signers, map[string]interface{}{
			"signerEmail": s.Email,
			"signerName":  s.DisplayName(),
			"orderIndex":  s.Order,
		})
	}
	payload := map[string]interface{}{
		"documentId": r.DocumentID,
		"title":      r.Title,
		"signers":    signers,
		"message":    r.Message.HTML,
	}
	if !r.ExpiresAt.IsZero() {
		payload["expiresAt"] = r.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return payload
}
