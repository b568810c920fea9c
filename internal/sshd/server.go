// Package sshd serves the Git smart protocol and git-lfs-authenticate
// handoff over SSH (spec §6.2), grounded on
// pkg/serve/sshserver/{server,session,command}.go's gliderlabs/ssh
// wiring and command-dispatch shape.
//
// The teacher authenticates keys against a database-backed key
// registry (pkg/serve/sshserver/server.go's OnKey, via s.db.SearchKey).
// Spec §6.2 names the subsystem commands a session may invoke but says
// nothing about how client keys are provisioned, so this package
// authenticates against an optional config-supplied authorized_keys
// file (internal/config.SSH.AuthorizedKeysPath) when set, and falls
// back to accepting any key — logging its SHA256 fingerprint the way
// the teacher logs host key fingerprints — when it is not. Push
// authorization itself still runs through Server.authorize per
// request, independent of which key accepted the connection.
package sshd

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"

	"github.com/gliderlabs/ssh"
	"github.com/sirupsen/logrus"
	gossh "golang.org/x/crypto/ssh"

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

const connFingerprintKey = "X-Mega-Fingerprint"

// Deps mirrors httpd.Deps: the object/ref/domain stores a session's
// subsystem command reaches into.
type Deps struct {
	Objects   *store.ObjectStore
	Refs      *refstore.Store
	CLs       *cl.Store
	Queue     *mergequeue.Store
	Sessions  *buck.Store
	Uploader  *buck.Uploader
	LFSAuth   *lfs.Authenticator
	Algorithm digest.Algorithm
	PackCache *pack.Cache
	Authorize protocol.Authorize
	Hooks     protocol.Hooks
}

type Server struct {
	cfg *config.SSH
	srv *ssh.Server

	objects   *store.ObjectStore
	refs      *refstore.Store
	lfsAuth   *lfs.Authenticator
	algorithm digest.Algorithm
	packCache *pack.Cache
	authorize protocol.Authorize
	hooks     protocol.Hooks

	mu             sync.RWMutex
	authorizedKeys []ssh.PublicKey
}

func NewServer(cfg *config.SSH, deps Deps) (*Server, error) {
	authorize := deps.Authorize
	if authorize == nil {
		authorize = func(ctx context.Context, refName string) bool { return true }
	}
	s := &Server{
		cfg:       cfg,
		objects:   deps.Objects,
		refs:      deps.Refs,
		lfsAuth:   deps.LFSAuth,
		algorithm: deps.Algorithm,
		packCache: deps.PackCache,
		authorize: authorize,
		hooks:     deps.Hooks,
	}
	if cfg.AuthorizedKeysPath != "" {
		keys, err := loadAuthorizedKeys(cfg.AuthorizedKeysPath)
		if err != nil {
			return nil, err
		}
		s.authorizedKeys = keys
	}

	srv := &ssh.Server{
		Addr:             cfg.Bind,
		PublicKeyHandler: s.onPublicKey,
		Handler:          s.onSession,
	}
	if cfg.HostKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.HostKeyPath)
		if err != nil {
			return nil, err
		}
		key, err := gossh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, err
		}
		srv.AddHostKey(key)
	}
	s.srv = srv
	return s, nil
}

func loadAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []ssh.PublicKey
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := gossh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, scanner.Err()
}

func (s *Server) onPublicKey(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	s.mu.RLock()
	configured := s.authorizedKeys
	s.mu.RUnlock()

	if len(configured) == 0 {
		logrus.Infof("sshd: accepting unregistered key, fingerprint %s user %s", fingerprint, ctx.User())
		ctx.SetValue(connFingerprintKey, fingerprint)
		return true
	}
	for _, k := range configured {
		if ssh.KeysEqual(k, key) {
			ctx.SetValue(connFingerprintKey, fingerprint)
			return true
		}
	}
	logrus.Warnf("sshd: rejected key, fingerprint %s user %s", fingerprint, ctx.User())
	return false
}

func (s *Server) onSession(sess ssh.Session) {
	fingerprint, _ := sess.Context().Value(connFingerprintKey).(string)
	code := s.dispatch(sess, fingerprint)
	_ = sess.Exit(code)
}

func (s *Server) ListenAndServe() error {
	logrus.Infof("sshd: listening on %s", s.cfg.Bind)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		logrus.Errorf("sshd: shutdown: %v", err)
		return err
	}
	return nil
}
