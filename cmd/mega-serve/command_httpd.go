package main

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega-core/internal/config"
	"github.com/mega-forge/mega-core/internal/httpd"
)

type HTTPD struct {
	Config string `short:"c" name:"config" help:"Location of server config file" default:"~/config/mega-serve-httpd.toml" type:"path"`
}

func (c *HTTPD) Run(globals *Globals) error {
	cfg, err := config.Load(c.Config, globals.ExpandEnv)
	if err != nil {
		logrus.Errorf("mega-serve httpd: load config: %v", err)
		return err
	}
	w, err := buildWiring(cfg)
	if err != nil {
		logrus.Errorf("mega-serve httpd: wire stores: %v", err)
		return err
	}
	defer w.Close()

	srv := httpd.NewServer(cfg.HTTP, httpd.Deps{
		Objects:   w.objects,
		Refs:      w.refs,
		CLs:       w.cls,
		Queue:     w.queue,
		Sessions:  w.sessions,
		Uploader:  w.uploader,
		LFSAuth:   w.lfsAuth,
		LFSBatch:  w.lfsBatch,
		Algorithm: w.algorithm,
		PackCache: w.packCache,
	})

	lifecycle := newCloser()
	go lifecycle.listenSignal(context.Background(), srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("mega-serve httpd: listen: %v", err)
		return err
	}
	<-lifecycle.ch
	logrus.Infof("mega-serve httpd: exited")
	return nil
}
