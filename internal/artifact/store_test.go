package artifact

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "http://localhost:8080/media/", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return l
}

func TestJobPath(t *testing.T) {
	assert.Equal(t, "cvs/job-1/task-1/cv.pdf", JobPath("job-1", "task-1"))
}

func TestLocal_Write(t *testing.T) {
	l := newLocal(t)

	url, err := l.Write(context.Background(), "cvs/j/t/cv.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/cvs/j/t/cv.pdf", url)

	data, err := os.ReadFile(filepath.Join(l.Root(), "cvs", "j", "t", "cv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	entries, err := os.ReadDir(filepath.Join(l.Root(), "cvs", "j", "t"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestLocal_WriteRefusesOverwrite(t *testing.T) {
	l := newLocal(t)

	_, err := l.Write(context.Background(), "cvs/j/t/cv.pdf", []byte("first"))
	require.NoError(t, err)

	_, err = l.Write(context.Background(), "cvs/j/t/cv.pdf", []byte("second"))
	assert.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(filepath.Join(l.Root(), "cvs", "j", "t", "cv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestLocal_WriteRejectsBadPaths(t *testing.T) {
	l := newLocal(t)

	for _, name := range []string{"", "../escape.pdf", "cvs/../../x.pdf", "/abs.pdf"} {
		t.Run(name, func(t *testing.T) {
			_, err := l.Write(context.Background(), name, []byte("x"))
			assert.Error(t, err)
		})
	}
}

func TestLocal_WriteCancelled(t *testing.T) {
	l := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Write(ctx, "cvs/j/t/cv.pdf", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
