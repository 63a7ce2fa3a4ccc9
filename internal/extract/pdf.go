// Package extract implements the PDF and archive extraction ports named in
// spec.md §2 ("subprocess-based PDF and archive tools") as out-of-process
// collaborators: a typed Extractor interface the Coordinator calls before
// a PDF attachment's text is folded into the prompt, and a thin wrapper
// around the Safety Kernel's archive hardening for zip/tar attachments.
package extract

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPromptChars bounds how much extracted text is folded into a single
// prompt, per spec.md §5's "per-request text ceiling into the prompt ≈
// 50 KB" resource bound.
const maxPromptChars = 50_000

// Extractor pulls plain text out of a document. Two adapters satisfy it:
// PDF (pure Go via ledongthuc/pdf) and CLIPDF (shells out to an external
// pdftotext-compatible binary), selected by whether
// CLAWBRIDGE_PDFTOTEXT_PATH is configured.
type Extractor interface {
	Extract(path string) (string, error)
}

// PDF extracts text directly in-process via ledongthuc/pdf, page by page.
type PDF struct{}

var _ Extractor = PDF{}

func (PDF) Extract(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() >= maxPromptChars {
			break
		}
	}

	out := sb.String()
	if len(out) > maxPromptChars {
		out = out[:maxPromptChars]
	}
	return out, nil
}

// CLIPDF shells out to an external pdftotext-compatible binary, for
// operators who need layout fidelity the pure-Go reader doesn't preserve.
type CLIPDF struct {
	BinaryPath string
}

var _ Extractor = CLIPDF{}

func (c CLIPDF) Extract(path string) (string, error) {
	out, err := exec.Command(c.BinaryPath, path, "-").Output()
	if err != nil {
		return "", fmt.Errorf("extract: run %s: %w", c.BinaryPath, err)
	}
	text := string(out)
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	return text, nil
}

// New picks PDF or CLIPDF depending on whether an external binary path is
// configured.
func New(cliPath string) Extractor {
	if cliPath != "" {
		return CLIPDF{BinaryPath: cliPath}
	}
	return PDF{}
}
