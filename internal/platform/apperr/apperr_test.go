package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Input("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Forbidden("no"), http.StatusForbidden},
		{Unauthenticated("who"), http.StatusUnauthorized},
		{Conflict(), http.StatusConflict},
		{Policy(CodeCancellationWindow, "too late"), http.StatusUnprocessableEntity},
		{Internal("boom", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("create appointment: %w", Conflict())
	assert.Equal(t, KindPolicy, KindOf(err))
	assert.Equal(t, CodeSchedulingConflict, CodeOf(err))
	assert.True(t, Is(err, KindPolicy))
	assert.False(t, Is(nil, KindPolicy))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestInternal_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("load appointment", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func serve(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	ErrorHandler(zerolog.Nop())(err, c)
	return rec
}

func TestErrorHandler_ClassifiedError(t *testing.T) {
	rec := serve(t, Conflict())
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeSchedulingConflict, body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestErrorHandler_HidesInternalDetail(t *testing.T) {
	rec := serve(t, errors.New("pq: relation appointments does not exist"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	rec := serve(t, echo.NewHTTPError(http.StatusBadRequest, "invalid id"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid id")
}

func TestErrorHandler_KeepsServiceUnavailableMessage(t *testing.T) {
	err := echo.NewHTTPError(http.StatusServiceUnavailable, "request timed out").
		SetInternal(errors.New("context deadline exceeded"))
	rec := serve(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "request timed out", body.Message)
	assert.NotContains(t, rec.Body.String(), "deadline")
}

func TestErrorHandler_MasksEcho500(t *testing.T) {
	rec := serve(t, echo.NewHTTPError(http.StatusInternalServerError, "pgx: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pgx")
}

func TestErrorHandler_EchoErrorWithoutMessage(t *testing.T) {
	rec := serve(t, echo.NewHTTPError(http.StatusBadGateway))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), http.StatusText(http.StatusBadGateway))
}
