package httpd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/protocol"
)

const userAgent = "mega-serve"

func repoPath(r *http.Request) string {
	p := mux.Vars(r)["path"]
	return strings.Trim(p, "/")
}

// InfoRefs serves GET {path}.git/info/refs?service=git-(upload|receive)-pack,
// the discovery half of spec §6.1, grounded on
// pkg/serve/httpserver/server.go's info/refs dispatch.
func (s *Server) InfoRefs(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service != "git-upload-pack" && service != "git-receive-pack" {
		renderFailure(w, r, http.StatusBadRequest, "unsupported service %q", service)
		return
	}
	path := repoPath(r)

	refs, err := s.refs.List(r.Context(), path+"/")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var head digest.Hash
	if headRef, ok, err := s.refs.Head(r.Context(), path); err == nil && ok {
		for _, ref := range refs {
			if ref.Name == headRef {
				head = ref.Hash
				break
			}
		}
	}

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", service))
	w.WriteHeader(http.StatusOK)
	caps := protocol.Default(s.algorithm, userAgent)
	if err := protocol.AdvertiseRefs(w, service, head, refs, caps); err != nil {
		r.Header.Set(ErrorMessageKey, err.Error())
	}
}

// UploadPack serves POST {path}.git/git-upload-pack, the fetch half of
// spec §6.1.
func (s *Server) UploadPack(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	w.WriteHeader(http.StatusOK)
	pr := protocol.NewReader(r.Body)
	if err := protocol.UploadPack(r.Context(), pr, w, s.objects, s.algorithm); err != nil {
		r.Header.Set(ErrorMessageKey, err.Error())
	}
}

// ReceivePack serves POST {path}.git/git-receive-pack, the push half of
// spec §6.1, grounded on pkg/serve/repo/push.go's DoPush dispatch.
func (s *Server) ReceivePack(w http.ResponseWriter, r *http.Request) {
	path := repoPath(r)

	w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
	w.WriteHeader(http.StatusOK)

	pr := protocol.NewReader(r.Body)
	writer := objectWriter{s.objects}

	err := protocol.ReceivePack(
		r.Context(),
		path,
		pr,
		w,
		r.Body,
		writer,
		s.refs,
		s.packCache,
		s.authorize,
		s.hooks,
		s.algorithm,
	)
	if err != nil {
		r.Header.Set(ErrorMessageKey, err.Error())
	}
}
