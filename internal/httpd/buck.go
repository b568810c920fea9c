package httpd

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mega-forge/mega-core/internal/buck"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/object"
)

// BuckSessionStart serves POST /api/v1/buck/session/start, the
// session-creation step of spec §4.K.
func (s *Server) BuckSessionStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User       string `json:"user"`
		Path       string `json:"path"`
		FromCommit string `json:"from_commit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailure(w, r, http.StatusBadRequest, "malformed request body: %v", err)
		return
	}
	from, err := digest.FromHexAlgorithm(s.algorithm, req.FromCommit)
	if err != nil {
		renderFailure(w, r, http.StatusBadRequest, "bad from_commit: %v", err)
		return
	}
	sess, err := s.sessions.CreateSession(r.Context(), req.User, req.Path, from)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, sess)
}

// BuckManifest serves POST /api/v1/buck/session/{session_id}/manifest,
// the manifest-diff step of spec §4.K.
func (s *Server) BuckManifest(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	var req struct {
		Entries []buckManifestEntryDTO `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailure(w, r, http.StatusBadRequest, "malformed request body: %v", err)
		return
	}
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if sess == nil {
		renderFailure(w, r, http.StatusNotFound, "unknown session %q", sessionID)
		return
	}

	entries := make([]buck.ManifestEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		if err := buck.ValidatePath(e.Path); err != nil {
			renderFailure(w, r, http.StatusBadRequest, "%v", err)
			return
		}
		h, err := buck.ParseManifestHash(e.Hash)
		if err != nil {
			renderFailure(w, r, http.StatusBadRequest, "%v", err)
			return
		}
		entries = append(entries, buck.ManifestEntry{Path: e.Path, Size: e.Size, Hash: h, Mode: e.modeOrDefault()})
	}

	toUpload, err := s.sessions.DiffManifest(r.Context(), sess, s.objects, entries)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"to_upload": toUpload})
}

type buckManifestEntryDTO struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
	Mode string `json:"mode,omitempty"`
}

func (e buckManifestEntryDTO) modeOrDefault() object.FileMode {
	if e.Mode == "" {
		return buck.DefaultMode
	}
	if mode, ok := object.ParseFileMode(e.Mode); ok {
		return mode
	}
	return buck.DefaultMode
}

// BuckFile serves POST /api/v1/buck/session/{session_id}/file, the
// per-file streaming upload step of spec §4.K: X-File-Path,
// X-File-Size, and an optional X-File-Hash ride as headers with the
// raw bytes as the body.
func (s *Server) BuckFile(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	path := r.Header.Get("X-File-Path")
	if path == "" {
		renderFailure(w, r, http.StatusBadRequest, "missing X-File-Path header")
		return
	}
	size, err := strconv.ParseInt(r.Header.Get("X-File-Size"), 10, 64)
	if err != nil {
		renderFailure(w, r, http.StatusBadRequest, "missing or malformed X-File-Size header")
		return
	}

	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if sess == nil {
		renderFailure(w, r, http.StatusNotFound, "unknown session %q", sessionID)
		return
	}

	var declared *digest.Hash
	if hex := r.Header.Get("X-File-Hash"); hex != "" {
		h, err := digest.FromHexAlgorithm(s.algorithm, hex)
		if err != nil {
			renderFailure(w, r, http.StatusBadRequest, "bad X-File-Hash: %v", err)
			return
		}
		declared = &h
	}

	result, err := s.uploader.UploadFile(r.Context(), sess, path, size, declared, r.Body)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// BuckComplete serves POST /api/v1/buck/session/{session_id}/complete,
// the tree-synthesis step of spec §4.K.
func (s *Server) BuckComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	var req struct {
		Author        string `json:"author"`
		CommitMessage string `json:"commit_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailure(w, r, http.StatusBadRequest, "malformed request body: %v", err)
		return
	}
	result, err := buck.Complete(r.Context(), s.sessions, s.objects, s.cls, sessionID, req.Author, req.CommitMessage)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}
