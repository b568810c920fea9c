package httpd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/lfs"
)

// fakeSignedBytesTier satisfies store.BytesTier without needing a real
// S3/GCS backend, for exercising lfs.Batcher's SignedURL call.
type fakeSignedBytesTier struct{}

func (fakeSignedBytesTier) PutStream(ctx context.Context, key string, r io.Reader, size int64) error {
	return nil
}
func (fakeSignedBytesTier) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}
func (fakeSignedBytesTier) GetRangeStream(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}
func (fakeSignedBytesTier) SignedURL(ctx context.Context, key, method string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key + "?method=" + method, nil
}
func (fakeSignedBytesTier) Exists(ctx context.Context, key string) (bool, error) { return true, nil }
func (fakeSignedBytesTier) Delete(ctx context.Context, key string) error         { return nil }

func newTestLFSServer(t *testing.T) *Server {
	t.Helper()
	auth := lfs.NewAuthenticator([]byte("test-secret"), time.Hour, "https://mega.example/")
	batch := lfs.NewBatcher(fakeSignedBytesTier{}, "mega", time.Hour)
	return &Server{lfsAuth: auth, lfsBatch: batch}
}

func lfsRequest(t *testing.T, s *Server, path, token string, body lfs.BatchRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/"+path+".git/info/lfs/objects/batch", bytes.NewReader(payload))
	mux.SetURLVars(r, map[string]string{"path": path})
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.LFSBatch(rec, r)
	return rec
}

func TestLFSBatchAcceptsScopedToken(t *testing.T) {
	s := newTestLFSServer(t)
	block, err := s.lfsAuth.Authenticate("mono/zeta", lfs.Download)
	require.NoError(t, err)
	token := block.Header["Authorization"][len("Bearer "):]

	req := lfs.BatchRequest{Operation: lfs.Download, Objects: []lfs.ObjectDescriptor{{Oid: "abc123", Size: 42}}}
	rec := lfsRequest(t, s, "mono/zeta", token, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp lfs.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Objects, 1)
	require.Equal(t, "abc123", resp.Objects[0].Oid)
	require.Contains(t, resp.Objects[0].Actions, "download")
}

func TestLFSBatchRejectsTokenForWrongPath(t *testing.T) {
	s := newTestLFSServer(t)
	block, err := s.lfsAuth.Authenticate("mono/other", lfs.Download)
	require.NoError(t, err)
	token := block.Header["Authorization"][len("Bearer "):]

	req := lfs.BatchRequest{Operation: lfs.Download, Objects: []lfs.ObjectDescriptor{{Oid: "abc123", Size: 42}}}
	rec := lfsRequest(t, s, "mono/zeta", token, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLFSBatchRejectsDownloadTokenForUpload(t *testing.T) {
	s := newTestLFSServer(t)
	block, err := s.lfsAuth.Authenticate("mono/zeta", lfs.Download)
	require.NoError(t, err)
	token := block.Header["Authorization"][len("Bearer "):]

	req := lfs.BatchRequest{Operation: lfs.Upload, Objects: []lfs.ObjectDescriptor{{Oid: "abc123", Size: 42}}}
	rec := lfsRequest(t, s, "mono/zeta", token, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLFSBatchUploadTokenAuthorizesDownload(t *testing.T) {
	s := newTestLFSServer(t)
	block, err := s.lfsAuth.Authenticate("mono/zeta", lfs.Upload)
	require.NoError(t, err)
	token := block.Header["Authorization"][len("Bearer "):]

	req := lfs.BatchRequest{Operation: lfs.Download, Objects: []lfs.ObjectDescriptor{{Oid: "abc123", Size: 42}}}
	rec := lfsRequest(t, s, "mono/zeta", token, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLFSBatchRejectsMissingToken(t *testing.T) {
	s := newTestLFSServer(t)
	req := lfs.BatchRequest{Operation: lfs.Download, Objects: []lfs.ObjectDescriptor{{Oid: "abc123", Size: 42}}}
	rec := lfsRequest(t, s, "mono/zeta", "", req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLFSBatchRejectsMalformedBody(t *testing.T) {
	s := newTestLFSServer(t)
	r := httptest.NewRequest(http.MethodPost, "/mono/zeta.git/info/lfs/objects/batch", bytes.NewReader([]byte("{not json")))
	mux.SetURLVars(r, map[string]string{"path": "mono/zeta"})
	rec := httptest.NewRecorder()
	s.LFSBatch(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
