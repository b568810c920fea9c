package main

import (
	"context"
)

// Shutdowner is satisfied by both internal/httpd.Server and
// internal/sshd.Server.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

type closer struct {
	ch chan bool
}

func newCloser() *closer {
	return &closer{ch: make(chan bool, 1)}
}
