package httpd

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mega-forge/mega-core/internal/mergequeue"
)

// QueueAdd serves POST /api/v1/merge-queue/add (spec §4.J "Addition").
func (s *Server) QueueAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CLLink string `json:"cl_link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderFailure(w, r, http.StatusBadRequest, "malformed request body: %v", err)
		return
	}
	position, err := s.queue.Enqueue(r.Context(), req.CLLink)
	if err != nil {
		queueError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"cl_link": req.CLLink, "position": position})
}

// QueueRemove serves DELETE /api/v1/merge-queue/remove/{cl_link}
// (spec §4.J "Cancellation").
func (s *Server) QueueRemove(w http.ResponseWriter, r *http.Request) {
	clLink := mux.Vars(r)["cl_link"]
	removed, err := s.queue.Remove(r.Context(), clLink)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if !removed {
		renderFailure(w, r, http.StatusNotFound, "no active queue item for %q", clLink)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"removed": true})
}

// QueueList serves GET /api/v1/merge-queue/list.
func (s *Server) QueueList(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.List(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"items": items})
}

// QueueStatus serves GET /api/v1/merge-queue/status/{cl_link},
// including the spec §4.J display position alongside the raw item.
func (s *Server) QueueStatus(w http.ResponseWriter, r *http.Request) {
	clLink := mux.Vars(r)["cl_link"]
	item, err := s.queue.Status(r.Context(), clLink)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if item == nil {
		renderFailure(w, r, http.StatusNotFound, "no queue item for %q", clLink)
		return
	}
	position, active, err := s.queue.DisplayPosition(r.Context(), clLink)
	if err != nil {
		renderError(w, r, err)
		return
	}
	resp := map[string]any{"item": item}
	if active {
		resp["display_position"] = position
	}
	renderJSON(w, http.StatusOK, resp)
}

// QueueRetry serves POST /api/v1/merge-queue/retry/{cl_link}: a
// terminal Failed item is re-enqueued at the tail, mirroring a fresh
// Addition (spec §4.J leaves manual retry of a Failed item as a
// repeat of Addition rather than a distinct state transition).
func (s *Server) QueueRetry(w http.ResponseWriter, r *http.Request) {
	clLink := mux.Vars(r)["cl_link"]
	item, err := s.queue.Status(r.Context(), clLink)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if item == nil || item.Status != mergequeue.Failed {
		renderFailure(w, r, http.StatusConflict, "cl %q has no failed queue item to retry", clLink)
		return
	}
	position, err := s.queue.Enqueue(r.Context(), clLink)
	if err != nil {
		queueError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"cl_link": clLink, "position": position})
}

// QueueStats serves GET /api/v1/merge-queue/stats (spec §D.2).
func (s *Server) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.QueueStats(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, stats)
}

// QueueCancelAll serves POST /api/v1/merge-queue/cancel-all (spec
// §D.3).
func (s *Server) QueueCancelAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.CancelAll(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"cancelled": n})
}

func queueError(w http.ResponseWriter, r *http.Request, err error) {
	switch err {
	case mergequeue.ErrNotOpen, mergequeue.ErrAlreadyQueued:
		renderFailure(w, r, http.StatusConflict, "%v", err)
	default:
		renderError(w, r, err)
	}
}
