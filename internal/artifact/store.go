package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrExists is returned when a write targets a path that already holds an artifact.
var ErrExists = errors.New("artifact already exists")

// Store persists artifacts and returns their public locator.
type Store interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// JobPath is the storage path of a compile attempt's PDF.
func JobPath(jobID, taskID string) string {
	return path.Join("cvs", jobID, taskID, "cv.pdf")
}

// Local stores artifacts below a root directory served at BaseURL.
type Local struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

// NewLocal creates a Local store, creating root if needed.
func NewLocal(root, baseURL string, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Root is the directory artifacts are written under.
func (l *Local) Root() string {
	return l.root
}

// Write stores data at name. The file appears atomically and an existing
// file is never replaced.
func (l *Local) Write(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return "", fmt.Errorf("invalid artifact path %q", name)
	}

	dst := filepath.Join(l.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, clean)
		}
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	url := l.baseURL + "/" + clean
	l.logger.Info("Artifact stored",
		slog.String("path", clean),
		slog.Int("bytes", len(data)),
	)
	return url, nil
}
