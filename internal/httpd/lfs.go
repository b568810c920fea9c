package httpd

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mega-forge/mega-core/internal/lfs"
)

const lfsContentType = "application/vnd.git-lfs+json"

// LFSBatch serves POST {path}.git/info/lfs/objects/batch (spec
// §4.M): verifies the caller's bearer token scopes the requested
// operation against this path, then presigns one action per object.
func (s *Server) LFSBatch(w http.ResponseWriter, r *http.Request) {
	path := repoPath(r)

	var req lfs.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailure(w, r, http.StatusBadRequest, "malformed request body: %v", err)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := s.lfsAuth.VerifyToken(token)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if !claims.Match(path, req.Operation) {
		renderFailure(w, r, http.StatusForbidden, "token not scoped for %s on %s", req.Operation, path)
		return
	}

	resp, err := s.lfsBatch.Batch(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", lfsContentType)
	renderJSON(w, http.StatusOK, resp)
}
