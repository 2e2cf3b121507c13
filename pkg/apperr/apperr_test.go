package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeMapping(t *testing.T) {
	require.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x")))
	require.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("x")))
	require.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("x")))
	require.Equal(t, http.StatusConflict, HTTPStatus(Conflict("x")))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(Crypto("x", nil)))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestWrappingAndCodeOf(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("failed to persist", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeInternal, CodeOf(err))
	require.True(t, IsCode(err, CodeInternal))

	wrapped := fmt.Errorf("outer: %w", NotFound("conversation not found"))
	require.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := Internal("pebble iterator exploded", errors.New("stack details"))
	require.NotContains(t, PublicMessage(err), "pebble")

	require.Equal(t, "conversation not found", PublicMessage(NotFound("conversation not found")))
}
