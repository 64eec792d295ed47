package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := New("FAILED", "failed", http.StatusInternalServerError).WithInternal(stdErrors.New("boom"))
	require.Equal(t, "failed: boom", err.Error())
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.NotNil(t, with.Internal)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)
}

func TestFromErrorUnwrapsAppError(t *testing.T) {
	wrapped := fmt.Errorf("connect: %w", ErrInvalidUserType)

	out := FromError(wrapped)
	require.Equal(t, "INVALID_USER_TYPE", out.Code)
	require.Equal(t, http.StatusBadRequest, out.StatusCode)
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("room id is required")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, "room id is required", err.Message)
	require.Equal(t, ErrBadRequest.StatusCode, err.StatusCode)
}
