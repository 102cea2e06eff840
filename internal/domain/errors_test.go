package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_Policy(t *testing.T) {
	tests := []struct {
		class          ErrorClass
		retryable      bool
		operatorFacing bool
	}{
		{ClassCompilerTimeout, true, false},
		{ClassCompilerFailure, false, false},
		{ClassExtraction, false, false},
		{ClassRender, false, true},
		{ClassWorkerBudget, false, false},
		{ClassCancelled, false, false},
		{ClassInternal, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.class.Retryable())
			assert.Equal(t, tt.operatorFacing, tt.class.OperatorFacing())
		})
	}
}

func TestClassOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewStageError(ClassRender, StageRender, errors.New("missing field")))
	assert.Equal(t, ClassRender, ClassOf(wrapped))
	assert.Equal(t, ClassInternal, ClassOf(errors.New("plain")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))

	// "é" is two bytes; cutting inside it must back off to the rune start
	s := strings.Repeat("é", 10)
	out := Truncate(s, 5)
	assert.Equal(t, "éé", out)
	assert.LessOrEqual(t, len(out), 5)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(JobStatusSuccess))
	assert.True(t, IsTerminal(JobStatusFailed))
	assert.True(t, IsTerminal(JobStatusCancelled))
	assert.False(t, IsTerminal(JobStatusQueued))
	assert.False(t, IsTerminal(JobStatusProcessing))
}
