package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/cv-forge/internal/runner"
)

// MinTextLayerChars is the shortest text layer accepted from an upload.
const MinTextLayerChars = 50

// ErrScannedDocument means the upload has no usable text layer.
var ErrScannedDocument = errors.New("document has no readable text layer; it is likely a scanned image")

// TextLayer reads the embedded text of PDF uploads with pdftotext.
type TextLayer struct {
	runner runner.Runner
	binary string
}

// NewTextLayer creates a TextLayer; binary defaults to pdftotext.
func NewTextLayer(r runner.Runner, binary string) *TextLayer {
	if binary == "" {
		binary = "pdftotext"
	}
	return &TextLayer{runner: r, binary: binary}
}

// Text returns the document's text layer, or ErrScannedDocument when it is too short.
func (t *TextLayer) Text(ctx context.Context, pdf []byte) (string, error) {
	dir, err := os.MkdirTemp("", "cv-import-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "upload.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	stdout, stderr, err := t.runner.Run(ctx, dir, t.binary, "-layout", "-enc", "UTF-8", "upload.pdf", "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, runner.Truncate(string(stderr), 500))
	}

	text := strings.TrimSpace(string(stdout))
	if utf8.RuneCountInString(text) < MinTextLayerChars {
		return "", ErrScannedDocument
	}
	return text, nil
}
