package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusNotFound, CreatorMissing().Status())
	require.Equal(t, http.StatusBadRequest, SignatureInvalid().Status())
	require.Equal(t, http.StatusBadRequest, PowFailed().Status())
	require.Equal(t, http.StatusBadRequest, HashMismatch().Status())
	require.Equal(t, http.StatusBadRequest, ShapeInvalid("missing field").Status())
	require.Equal(t, http.StatusBadRequest, TipMoved().Status())
	require.Equal(t, http.StatusInternalServerError, Database(errors.New("connection refused")).Status())
}

func TestErrorImplementsError(t *testing.T) {
	var err error = New(KindValidation, "x", "bad input")
	require.EqualError(t, err, "bad input")
}

func TestShapeInvalidCarriesReason(t *testing.T) {
	e := ShapeInvalid("data field missing")
	require.Equal(t, "data field missing", e.Details["reason"])
}

func TestUnknownKindDefaultsToInternalServerError(t *testing.T) {
	e := New(Kind("bogus"), "x", "y")
	require.Equal(t, http.StatusInternalServerError, e.Status())
}
