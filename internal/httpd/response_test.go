package httpd

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/mega"
)

func TestRemoteAddressPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "203.0.113.9", remoteAddress(r))
}

func TestRemoteAddressFallsBackToRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-Ip", "198.51.100.4")
	r.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "198.51.100.4", remoteAddress(r))
}

func TestRemoteAddressFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:5555"
	require.Equal(t, "198.51.100.7", remoteAddress(r))
}

func TestResponseWriterTracksStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := NewResponseWriter(rec, req)

	w.WriteHeader(http.StatusCreated)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.Equal(t, http.StatusCreated, w.StatusCode())
	require.Equal(t, int64(5), w.Written())
}

func TestRenderErrorMapsUnknownObjectToNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.UnknownObject{Hash: "deadbeef"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderErrorMapsRefConflictToConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.RefConflict{Path: "mono/zeta", Name: "refs/heads/mainline"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRenderErrorMapsUnauthorizedToForbidden(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.Unauthorized{Subject: "bob", Action: "push", Path: "mono/zeta"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRenderErrorMapsQuotaExceededTo413(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.QuotaExceeded{Reason: "session file count"})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRenderErrorMapsMalformedObjectToBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.MalformedObject{Reason: "bad tree entry"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderErrorMapsChecksumMismatchToBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.ChecksumMismatch{Context: "pack trailer"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderErrorMapsTimeoutToGatewayTimeout(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.Timeout{Op: "receive-pack"})
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestRenderErrorMapsTransientStorageToServiceUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, &mega.TransientStorage{Cause: errors.New("dial timeout")})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRenderErrorDefaultsToInternalServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(rec, req, errors.New("something unmapped"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "something unmapped", req.Header.Get(ErrorMessageKey))
}
