// Package httpd serves the Git smart protocol over HTTP (spec §6.1)
// and the Buck/merge-queue/LFS REST surfaces (spec §6.4, §6.5, §4.M)
// over gorilla/mux, grounded on pkg/serve/httpserver/server.go's
// router/logging/shutdown shape.
package httpd

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega-core/internal/buck"
	"github.com/mega-forge/mega-core/internal/cl"
	"github.com/mega-forge/mega-core/internal/config"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/lfs"
	"github.com/mega-forge/mega-core/internal/mergequeue"
	"github.com/mega-forge/mega-core/internal/pack"
	"github.com/mega-forge/mega-core/internal/protocol"
	"github.com/mega-forge/mega-core/internal/refstore"
	"github.com/mega-forge/mega-core/internal/store"
)

// Server wires the object store, ref store, and domain stores behind
// an http.Server and a gorilla/mux router.
type Server struct {
	cfg *config.HTTP
	srv *http.Server
	r   *mux.Router

	objects   *store.ObjectStore
	refs      *refstore.Store
	cls       *cl.Store
	queue     *mergequeue.Store
	sessions  *buck.Store
	uploader  *buck.Uploader
	lfsAuth   *lfs.Authenticator
	lfsBatch  *lfs.Batcher
	algorithm digest.Algorithm
	packCache *pack.Cache

	authorize protocol.Authorize
	hooks     protocol.Hooks
}

type Deps struct {
	Objects   *store.ObjectStore
	Refs      *refstore.Store
	CLs       *cl.Store
	Queue     *mergequeue.Store
	Sessions  *buck.Store
	Uploader  *buck.Uploader
	LFSAuth   *lfs.Authenticator
	LFSBatch  *lfs.Batcher
	Algorithm digest.Algorithm
	PackCache *pack.Cache
	Authorize protocol.Authorize
	Hooks     protocol.Hooks
}

func NewServer(cfg *config.HTTP, deps Deps) *Server {
	authorize := deps.Authorize
	if authorize == nil {
		authorize = func(ctx context.Context, refName string) bool { return true }
	}
	s := &Server{
		cfg:       cfg,
		objects:   deps.Objects,
		refs:      deps.Refs,
		cls:       deps.CLs,
		queue:     deps.Queue,
		sessions:  deps.Sessions,
		uploader:  deps.Uploader,
		lfsAuth:   deps.LFSAuth,
		lfsBatch:  deps.LFSBatch,
		algorithm: deps.Algorithm,
		packCache: deps.PackCache,
		authorize: authorize,
		hooks:     deps.Hooks,
	}
	s.srv = &http.Server{
		Addr:         cfg.Bind,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
		Handler:      s,
	}
	s.r = s.router()
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()

	// spec §6.1: smart protocol over HTTP.
	r.HandleFunc("/{path:.*}.git/info/refs", s.InfoRefs).Methods(http.MethodGet)
	r.HandleFunc("/{path:.*}.git/git-upload-pack", s.UploadPack).Methods(http.MethodPost)
	r.HandleFunc("/{path:.*}.git/git-receive-pack", s.ReceivePack).Methods(http.MethodPost)

	// spec §6.4: buck REST API.
	b := r.PathPrefix("/api/v1/buck").Subrouter()
	b.HandleFunc("/session/start", s.BuckSessionStart).Methods(http.MethodPost)
	b.HandleFunc("/session/{session_id}/manifest", s.BuckManifest).Methods(http.MethodPost)
	b.HandleFunc("/session/{session_id}/file", s.BuckFile).Methods(http.MethodPost)
	b.HandleFunc("/session/{session_id}/complete", s.BuckComplete).Methods(http.MethodPost)

	// spec §6.5: merge queue REST API.
	q := r.PathPrefix("/api/v1/merge-queue").Subrouter()
	q.HandleFunc("/add", s.QueueAdd).Methods(http.MethodPost)
	q.HandleFunc("/remove/{cl_link}", s.QueueRemove).Methods(http.MethodDelete)
	q.HandleFunc("/list", s.QueueList).Methods(http.MethodGet)
	q.HandleFunc("/status/{cl_link}", s.QueueStatus).Methods(http.MethodGet)
	q.HandleFunc("/retry/{cl_link}", s.QueueRetry).Methods(http.MethodPost)
	q.HandleFunc("/stats", s.QueueStats).Methods(http.MethodGet)
	q.HandleFunc("/cancel-all", s.QueueCancelAll).Methods(http.MethodPost)

	// spec §4.M: LFS batch endpoint (nested under the Git smart-HTTP path).
	r.HandleFunc("/{path:.*}.git/info/lfs/objects/batch", s.LFSBatch).Methods(http.MethodPost)

	return r
}

func (s *Server) ListenAndServe() error {
	logrus.Infof("httpd: listening on %s", s.cfg.Bind)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		logrus.Errorf("httpd: shutdown: %v", err)
		return err
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL != nil {
		r.URL.Path = path.Clean(r.URL.Path)
	}
	w.Header().Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
	now := time.Now()
	hw := NewResponseWriter(w, r)
	s.r.ServeHTTP(hw, r)
	logResponse(hw, r, time.Since(now))
}
