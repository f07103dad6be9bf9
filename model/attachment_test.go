package model

import (
	"encoding/base64"
	"testing"
)

func manifestWithAttachments() *PayloadSchema {
	return &PayloadSchema{
		AttachmentFields: []string{"document", "receipt"},
		DiffFields:       []string{"amount", "status"},
	}
}

func TestDetectAttachments(t *testing.T) {
	schema := manifestWithAttachments()

	pending := &Attachment{Name: "a.pdf", Content: []byte("x")}
	uploaded := &Attachment{Name: "b.pdf", Reference: "ref://b"}
	payload := map[string]any{
		"document": pending,
		"receipt":  uploaded,
		"amount":   5, // not an attachment field
	}

	found := DetectAttachments(schema, payload)
	if len(found) != 1 {
		t.Fatalf("found = %d attachments, want 1", len(found))
	}
	if found["document"] != pending {
		t.Errorf("found = %+v, want the pending document", found)
	}
}

func TestDetectAttachments_decodedPayload(t *testing.T) {
	schema := manifestWithAttachments()

	// The shape a JSON decoder produces: a plain map with base64 content.
	payload := map[string]any{
		"document": map[string]any{
			"name":         "a.pdf",
			"content_type": "application/pdf",
			"content":      base64.StdEncoding.EncodeToString([]byte("body")),
		},
		"receipt": map[string]any{
			"name":      "b.pdf",
			"reference": "ref://b",
		},
	}

	found := DetectAttachments(schema, payload)
	if len(found) != 1 {
		t.Fatalf("found = %d attachments, want 1", len(found))
	}
	att := found["document"]
	if att.Name != "a.pdf" || att.ContentType != "application/pdf" || string(att.Content) != "body" {
		t.Errorf("coerced attachment = %+v", att)
	}

	// The payload now holds the typed value, so reference assignment after
	// upload is visible through the payload.
	typed, ok := payload["document"].(*Attachment)
	if !ok || typed != att {
		t.Fatalf("payload[document] = %T, want the coerced *Attachment", payload["document"])
	}
	if up, ok := payload["receipt"].(*Attachment); !ok || up.Reference != "ref://b" {
		t.Errorf("payload[receipt] = %+v, want coerced uploaded attachment", payload["receipt"])
	}
}

func TestDetectAttachments_rejectsMalformedContent(t *testing.T) {
	payload := map[string]any{
		"document": map[string]any{"name": "a.pdf", "content": "not-base64!"},
	}
	if got := DetectAttachments(manifestWithAttachments(), payload); got != nil {
		t.Errorf("found = %+v, want none for undecodable content", got)
	}
	if _, ok := payload["document"].(*Attachment); ok {
		t.Error("malformed value must not be replaced in the payload")
	}
}

func TestDetectAttachments_empty(t *testing.T) {
	if got := DetectAttachments(nil, map[string]any{"document": &Attachment{}}); got != nil {
		t.Errorf("nil schema: got %+v", got)
	}
	if got := DetectAttachments(manifestWithAttachments(), nil); got != nil {
		t.Errorf("nil payload: got %+v", got)
	}
	if got := DetectAttachments(manifestWithAttachments(), map[string]any{"document": "not-an-attachment"}); got != nil {
		t.Errorf("wrong type: got %+v", got)
	}
}

func TestAttachmentPending(t *testing.T) {
	tests := []struct {
		name string
		att  Attachment
		want bool
	}{
		{"inline only", Attachment{Content: []byte("x")}, true},
		{"uploaded", Attachment{Reference: "ref://x"}, false},
		{"empty", Attachment{}, false},
		{"both populated", Attachment{Content: []byte("x"), Reference: "ref://x"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.att.Pending(); got != tc.want {
				t.Errorf("Pending() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChangedFields(t *testing.T) {
	schema := manifestWithAttachments()

	before := map[string]any{"amount": 100, "status": "draft", "note": "x"}
	after := map[string]any{"amount": 250, "status": "draft", "note": "y"}

	changes := ChangedFields(schema, before, after)
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want one", changes)
	}
	if changes[0].Field != "amount" || changes[0].Old != 100 || changes[0].New != 250 {
		t.Errorf("change = %+v", changes[0])
	}
}

func TestChangedFields_ignoresUndeclaredFields(t *testing.T) {
	schema := manifestWithAttachments()

	// "note" differs but is not declared diffable.
	changes := ChangedFields(schema,
		map[string]any{"note": "a"},
		map[string]any{"note": "b"})
	if changes != nil {
		t.Errorf("changes = %+v, want none", changes)
	}
}
