package httpd

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/mergequeue"
)

func TestQueueErrorMapsNotOpenToConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	queueError(rec, req, mergequeue.ErrNotOpen)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueErrorMapsAlreadyQueuedToConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	queueError(rec, req, mergequeue.ErrAlreadyQueued)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueErrorFallsBackToRenderError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	queueError(rec, req, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
