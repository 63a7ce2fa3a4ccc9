package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/clawbridge/internal/extract"
)

// resolveAttachment turns a downloaded voice note, PDF, or archive into the
// text folded into the prompt ahead of the agent invocation, per spec.md
// §7's "Transcription and Extraction surface a short user-visible error and
// do not invoke the agent" propagation rule — a failure here must never
// reach runQuery.
func (c *Coordinator) resolveAttachment(ctx context.Context, in Inbound) (string, error) {
	// The image case hands its local path to the agent to open with its own
	// vision tool access, so it must survive past this function's return;
	// every other kind is fully consumed here and can be cleaned up eagerly.
	if in.AttachmentKind != "image" {
		defer func() {
			if in.AttachmentPath != "" {
				_ = os.Remove(in.AttachmentPath)
			}
		}()
	}

	switch in.AttachmentKind {
	case "image":
		return fmt.Sprintf("<media:image path=%q>", in.AttachmentPath), nil

	case "voice":
		if c.Transcription == nil {
			return "", fmt.Errorf("transcription is not configured")
		}
		data, err := os.ReadFile(in.AttachmentPath)
		if err != nil {
			return "", fmt.Errorf("read voice note: %w", err)
		}
		return c.Transcription.Transcribe(ctx, data)

	case "pdf":
		extractor := c.PDFExtractor
		if extractor == nil {
			extractor = extract.PDF{}
		}
		return extractor.Extract(in.AttachmentPath)

	case "archive":
		dest := filepath.Join(c.ExtractDir, filepath.Base(in.AttachmentPath)+"-unpacked")
		defer os.RemoveAll(dest)
		return extract.ExtractArchive(in.AttachmentPath, dest)

	default:
		return "", fmt.Errorf("unrecognized attachment kind %q", in.AttachmentKind)
	}
}
