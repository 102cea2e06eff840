package runner

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_Run(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	stdout, stderr, err := Exec{}.Run(context.Background(), dir, "sh", "-c", "pwd; echo oops 1>&2")
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(string(stdout)))
	assert.Equal(t, "oops", strings.TrimSpace(string(stderr)))
}

func TestExec_RunFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	_, stderr, err := Exec{}.Run(context.Background(), t.TempDir(), "sh", "-c", "echo bad 1>&2; exit 3")
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Equal(t, "bad", strings.TrimSpace(string(stderr)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...(truncated)", Truncate("abcdef", 2))
}
