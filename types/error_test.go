package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrStorage, "store unavailable").
		WithCause(root).
		WithHTTPStatus(503).
		WithRetryable(true)

	assert.Equal(t, ErrStorage, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "STORAGE_FAILED")
	assert.Contains(t, err.Error(), "root")
}

func TestAsError_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewNotFoundError("node type not found")
	wrapped := fmt.Errorf("lookup: %w", inner)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrNotFound, got.Code)
	assert.Equal(t, http.StatusNotFound, got.HTTPStatus)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrNotFound, http.StatusNotFound},
		{ErrLoadFailed, http.StatusUnprocessableEntity},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrStorage, http.StatusServiceUnavailable},
		{ErrExecution, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.code), string(tt.code))
	}
}
