package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassificationSurvivesWrapping(t *testing.T) {
	base := NewTransient("gemini request failed", errors.New("connection reset"))
	wrapped := fmt.Errorf("cycle 3: %w", WrapError(base, "summarize doc-1"))

	require.True(t, IsTransient(wrapped))
	require.False(t, IsContentError(wrapped))
	require.False(t, IsConfigError(wrapped))
}

func TestCodesAreDisjoint(t *testing.T) {
	require.True(t, IsContentError(NewContentError("empty response", nil)))
	require.True(t, IsConfigError(NewConfigError("missing API key", nil)))
	require.False(t, IsTransient(errors.New("plain error")))
}

func TestErrorStringIncludesCauseChain(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := NewTransient("notion request failed", cause)

	require.Contains(t, err.Error(), CodeTransient)
	require.Contains(t, err.Error(), "notion request failed")
	require.ErrorIs(t, err, cause)
}

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, WrapError(nil, "anything"))
}
