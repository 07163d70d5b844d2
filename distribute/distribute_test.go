package distribute

import (
	"strings"
	"testing"
	"time"
)

func TestValidSignatoriesFiltersAndRenumbers(t *testing.T) {
	in := []Signatory{
		{Email: "alice@example.com", Name: "Alice", Order: 1},
		{Email: "not-an-address", Order: 2},
		{Email: "bob@example.com", Order: 3},
		{Email: "", Order: 4},
	}
	got := ValidSignatories(in)
	if len(got) != 2 {
		t.Fatalf("signatories = %d, want 2", len(got))
	}
	if got[0].Name != "Alice" || got[0].Order != 1 {
		t.Fatalf("first = %+v", got[0])
	}
	// Missing name falls back to the address local part.
	if got[1].Name != "bob" || got[1].Order != 2 {
		t.Fatalf("second = %+v", got[1])
	}
	if in[2].Name != "" {
		t.Fatalf("input slice was mutated: %+v", in[2])
	}
}

func TestAddRemoveMove(t *testing.T) {
	list := Add(nil)
	list[0].Email = "a@x.com"
	list = Add(list)
	list[1].Email = "b@x.com"
	list = Add(list)
	list[2].Email = "c@x.com"

	list = Remove(list, 1)
	if len(list) != 2 || list[1].Email != "c@x.com" || list[1].Order != 2 {
		t.Fatalf("after remove: %+v", list)
	}

	list = Move(list, 1, 0)
	if list[0].Email != "c@x.com" || list[0].Order != 1 || list[1].Order != 2 {
		t.Fatalf("after move: %+v", list)
	}

	if got := Remove(list, 5); len(got) != 2 {
		t.Fatalf("out-of-range remove changed list: %+v", got)
	}
	if got := Move(list, 0, 9); got[0].Email != "c@x.com" {
		t.Fatalf("out-of-range move changed list: %+v", got)
	}
}

func TestRenderMessage(t *testing.T) {
	msg, err := RenderMessage("# Please sign\n\nDue **Friday**.\n\n- page 3\n- initial page 5")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(msg.HTML, "<h1>Please sign</h1>") {
		t.Fatalf("html = %q", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "<strong>Friday</strong>") {
		t.Fatalf("html = %q", msg.HTML)
	}
	if strings.Contains(msg.Text, "<") {
		t.Fatalf("text contains markup: %q", msg.Text)
	}
	for _, want := range []string{"Please sign", "Due Friday.", "page 3", "initial page 5"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("text missing %q: %q", want, msg.Text)
		}
	}
}

func TestRenderMessageEmpty(t *testing.T) {
	msg, err := RenderMessage("   \n ")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.HTML != "" || msg.Text != "" {
		t.Fatalf("expected empty message, got %+v", msg)
	}
}

func TestRequestPayload(t *testing.T) {
	exp := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	r := Request{
		DocumentID: "doc-1",
		Title:      "NDA",
		Signatories: []Signatory{
			{Email: "alice@example.com", Name: "Alice", Order: 1},
			{Email: "bob@example.com", Order: 2},
		},
		Message:   Message{HTML: "<p>hi</p>"},
		ExpiresAt: exp,
	}
	p := r.Payload()
	if p["documentId"] != "doc-1" || p["title"] != "NDA" {
		t.Fatalf("payload = %+v", p)
	}
	signers := p["signers"].([]map[string]interface{})
	if len(signers) != 2 {
		t.Fatalf("signers = %+v", signers)
	}
	if signers[1]["signerName"] != "bob" || signers[1]["orderIndex"] != 2 {
		t.Fatalf("second signer = %+v", signers[1])
	}
	if p["expiresAt"] != "2026-09-15T12:00:00Z" {
		t.Fatalf("expiresAt = %v", p["expiresAt"])
	}

	delete(p, "expiresAt")
	r.ExpiresAt = time.Time{}
	if _, ok := r.Payload()["expiresAt"]; ok {
		t.Fatalf("zero expiry should be omitted")
	}
}
