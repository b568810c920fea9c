package sshd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gliderlabs/ssh"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega-core/internal/lfs"
	"github.com/mega-forge/mega-core/internal/protocol"
	"github.com/mega-forge/mega-core/internal/store"
)

// objectWriter adapts *store.ObjectStore to protocol.ObjectWriter, the
// same reshaping internal/httpd.objectWriter performs for the HTTP
// transport.
type objectWriter struct {
	*store.ObjectStore
}

func (o objectWriter) PutBatch(ctx context.Context, entries []protocol.StoreEntry) error {
	putEntries := make([]store.PutEntry, len(entries))
	for i, e := range entries {
		putEntries[i] = store.PutEntry{Type: e.Type, Body: e.Body}
	}
	_, err := o.ObjectStore.PutBatch(ctx, putEntries)
	return err
}

// dispatch parses the raw subsystem command (spec §6.2) and runs the
// matching handler. Exit codes follow the shell convention: 0 success,
// nonzero failure.
func (s *Server) dispatch(sess ssh.Session, fingerprint string) int {
	args, err := parseCommand(sess.RawCommand())
	if err != nil || len(args) == 0 {
		fmt.Fprintln(sess.Stderr(), "fatal: missing or malformed subsystem command")
		return 1
	}
	logrus.Infof("sshd: session fingerprint=%s command=%q", fingerprint, sess.RawCommand())

	switch args[0] {
	case "git-upload-pack":
		if len(args) != 2 {
			fmt.Fprintln(sess.Stderr(), "fatal: usage: git-upload-pack '<path>'")
			return 1
		}
		return s.uploadPack(sess, args[1])
	case "git-receive-pack":
		if len(args) != 2 {
			fmt.Fprintln(sess.Stderr(), "fatal: usage: git-receive-pack '<path>'")
			return 1
		}
		return s.receivePack(sess, args[1])
	case "git-lfs-authenticate":
		if len(args) != 3 {
			fmt.Fprintln(sess.Stderr(), "fatal: usage: git-lfs-authenticate '<path>' {upload|download}")
			return 1
		}
		return s.lfsAuthenticate(sess, args[1], args[2])
	default:
		fmt.Fprintf(sess.Stderr(), "fatal: unsupported command %q\n", args[0])
		return 1
	}
}

func (s *Server) uploadPack(sess ssh.Session, path string) int {
	pr := protocol.NewReader(sess)
	if err := protocol.UploadPack(sess.Context(), pr, sess, s.objects, s.algorithm); err != nil {
		fmt.Fprintf(sess.Stderr(), "fatal: %v\n", err)
		return 1
	}
	return 0
}

func (s *Server) receivePack(sess ssh.Session, path string) int {
	pr := protocol.NewReader(sess)
	writer := objectWriter{s.objects}
	err := protocol.ReceivePack(
		sess.Context(),
		path,
		pr,
		sess,
		sess,
		writer,
		s.refs,
		s.packCache,
		s.authorize,
		s.hooks,
		s.algorithm,
	)
	if err != nil {
		fmt.Fprintf(sess.Stderr(), "fatal: %v\n", err)
		return 1
	}
	return 0
}

func (s *Server) lfsAuthenticate(sess ssh.Session, path, opStr string) int {
	op, err := lfs.ParseOperation(opStr)
	if err != nil {
		fmt.Fprintf(sess.Stderr(), "fatal: %v\n", err)
		return 1
	}
	block, err := s.lfsAuth.Authenticate(path, op)
	if err != nil {
		fmt.Fprintf(sess.Stderr(), "fatal: %v\n", err)
		return 1
	}
	if err := json.NewEncoder(sess).Encode(block); err != nil {
		logrus.Errorf("sshd: encode lfs bearer block: %v", err)
	}
	return 0
}
