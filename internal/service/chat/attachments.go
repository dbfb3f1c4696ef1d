package chat

import (
	"context"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"strings"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
)

const unknownMediaType = "unknown"

// processAttachments annotates text with every file attachment and
// acknowledges each one. A failing attachment is reported and skipped.
func (s *Service) processAttachments(ctx context.Context, sessionID, text string, attachments []chatmodel.Attachment, out Output) string {
	var b strings.Builder
	b.WriteString(text)

	for _, att := range attachments {
		if att == nil || att.Kind() != chatmodel.AttachmentKindFile {
			continue
		}

		name := att.Name()
		if _, err := att.Content(ctx); err != nil {
			s.reportAttachmentError(ctx, sessionID, name, err, out)
			continue
		}

		fmt.Fprintf(&b, "\n[Attached file: %s (%s)]", name, MediaType(name))

		ack := chatmodel.Reply{
			Content: fmt.Sprintf("File '%s' received!", name),
			Elements: []chatmodel.Element{{
				Name:    "file_preview_" + name,
				Content: "File uploaded: " + name,
				Display: "inline",
			}},
		}
		if err := out.Send(ctx, ack); err != nil {
			s.reportAttachmentError(ctx, sessionID, name, err, out)
		}
	}
	return b.String()
}

func (s *Service) reportAttachmentError(ctx context.Context, sessionID, name string, err error, out Output) {
	log.Printf("[chat] session=%s attachment %q failed: %v", sessionID, name, err)
	if sendErr := out.Send(ctx, chatmodel.Reply{Content: fmt.Sprintf("Error processing file %s: %v", name, err)}); sendErr != nil {
		log.Printf("[chat] session=%s failed to report attachment error: %v", sessionID, sendErr)
	}
}

// MediaType resolves the media type of a file from its extension.
func MediaType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return unknownMediaType
	}
	full := mime.TypeByExtension(ext)
	if full == "" {
		return unknownMediaType
	}
	mediaType, _, err := mime.ParseMediaType(full)
	if err != nil {
		return full
	}
	return mediaType
}
