package chat

import (
	"context"
	"encoding/base64"
	"fmt"
)

// AttachmentKindFile marks an uploaded file element.
const AttachmentKindFile = "file"

// Attachment is an element delivered alongside a user message.
type Attachment interface {
	Name() string
	Kind() string
	Content(ctx context.Context) ([]byte, error)
}

// Inbound is a user message as received from the UI runtime.
type Inbound struct {
	Text        string
	Attachments []Attachment
}

// Element is a display element attached to an outgoing reply.
type Element struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Display string `json:"display,omitempty"`
}

// Reply is a message sent back to the UI.
type Reply struct {
	Content  string    `json:"content"`
	Author   string    `json:"author,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// InlineFile is an attachment whose content travels base64 encoded in the
// request body.
type InlineFile struct {
	FileName string `json:"name"`
	Type     string `json:"type,omitempty"`
	Data     string `json:"data"`
}

func (f InlineFile) Name() string { return f.FileName }

func (f InlineFile) Kind() string {
	if f.Type == "" {
		return AttachmentKindFile
	}
	return f.Type
}

// Content decodes the embedded payload.
func (f InlineFile) Content(_ context.Context) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.FileName, err)
	}
	return data, nil
}

// Attachments converts inline files to the Attachment interface.
func Attachments(files []InlineFile) []Attachment {
	if len(files) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	return out
}
