package model

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Attachment is a payload value holding either inline content or an opaque
// reference produced by an uploader. After upload exactly one of the two is
// populated.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Pending returns true while the attachment still carries inline content
// without a reference.
func (a *Attachment) Pending() bool {
	return len(a.Content) > 0 && a.Reference == ""
}

// Uploader is the external attachment-upload capability. Given an attachment
// and a reference-type tag it returns the opaque reference; storage I/O is
// outside the engine.
type Uploader interface {
	Upload(ctx context.Context, att *Attachment, referenceType string) (string, error)
}

// DetectAttachments walks the schema's declared attachment fields and
// returns the pending attachments found in the payload, paired with their
// field names. Payloads decoded from JSON carry attachments as plain maps;
// those are coerced to *Attachment and written back into the payload so
// later mutations (reference assignment) land in the stored payload.
func DetectAttachments(schema *PayloadSchema, payload map[string]any) map[string]*Attachment {
	if schema == nil || payload == nil {
		return nil
	}
	found := make(map[string]*Attachment)
	for _, field := range schema.AttachmentFields {
		att := coerceAttachment(payload[field])
		if att == nil {
			continue
		}
		payload[field] = att
		if att.Pending() {
			found[field] = att
		}
	}
	if len(found) == 0 {
		return nil
	}
	return found
}

// coerceAttachment accepts the two shapes an attachment arrives in: the
// typed *Attachment from embedded callers, and the map[string]any a JSON
// decoder produces, where content is a base64 string. Anything else is not
// an attachment.
func coerceAttachment(v any) *Attachment {
	switch val := v.(type) {
	case *Attachment:
		return val
	case map[string]any:
		att := &Attachment{}
		if s, ok := val["name"].(string); ok {
			att.Name = s
		}
		if s, ok := val["content_type"].(string); ok {
			att.ContentType = s
		}
		if s, ok := val["reference"].(string); ok {
			att.Reference = s
		}
		if s, ok := val["content"].(string); ok {
			content, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil
			}
			att.Content = content
		}
		if att.Name == "" && att.Content == nil && att.Reference == "" {
			return nil
		}
		return att
	default:
		return nil
	}
}

// FieldChange records one differing field between two payload snapshots.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// ChangedFields compares two payload snapshots over the schema's declared
// diff fields, in declaration order. Values compare by their string forms,
// which is sufficient for the scalar fields a manifest declares diffable.
func ChangedFields(schema *PayloadSchema, before, after map[string]any) []FieldChange {
	if schema == nil {
		return nil
	}
	var changes []FieldChange
	for _, field := range schema.DiffFields {
		oldVal, newVal := before[field], after[field]
		if fmt.Sprint(oldVal) == fmt.Sprint(newVal) {
			continue
		}
		changes = append(changes, FieldChange{Field: field, Old: oldVal, New: newVal})
	}
	return changes
}
