package main

import (
	"context"
	"errors"

	"github.com/gliderlabs/ssh"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega-core/internal/config"
	"github.com/mega-forge/mega-core/internal/sshd"
)

type SSHD struct {
	Config string `short:"c" name:"config" help:"Location of server config file" default:"~/config/mega-serve-sshd.toml" type:"path"`
}

func (c *SSHD) Run(globals *Globals) error {
	cfg, err := config.Load(c.Config, globals.ExpandEnv)
	if err != nil {
		logrus.Errorf("mega-serve sshd: load config: %v", err)
		return err
	}
	w, err := buildWiring(cfg)
	if err != nil {
		logrus.Errorf("mega-serve sshd: wire stores: %v", err)
		return err
	}
	defer w.Close()

	srv, err := sshd.NewServer(cfg.SSH, sshd.Deps{
		Objects:   w.objects,
		Refs:      w.refs,
		CLs:       w.cls,
		Queue:     w.queue,
		Sessions:  w.sessions,
		Uploader:  w.uploader,
		LFSAuth:   w.lfsAuth,
		Algorithm: w.algorithm,
		PackCache: w.packCache,
	})
	if err != nil {
		logrus.Errorf("mega-serve sshd: new server: %v", err)
		return err
	}

	lifecycle := newCloser()
	go lifecycle.listenSignal(context.Background(), srv)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		logrus.Errorf("mega-serve sshd: listen: %v", err)
		return err
	}
	<-lifecycle.ch
	logrus.Infof("mega-serve sshd: exited")
	return nil
}
