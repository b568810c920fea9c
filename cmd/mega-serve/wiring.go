package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega-core/internal/buck"
	"github.com/mega-forge/mega-core/internal/cl"
	"github.com/mega-forge/mega-core/internal/config"
	"github.com/mega-forge/mega-core/internal/digest"
	"github.com/mega-forge/mega-core/internal/lfs"
	"github.com/mega-forge/mega-core/internal/lock"
	"github.com/mega-forge/mega-core/internal/mergequeue"
	"github.com/mega-forge/mega-core/internal/pack"
	"github.com/mega-forge/mega-core/internal/refstore"
	"github.com/mega-forge/mega-core/internal/store"
)

// wiring bundles every store and processor wired from one Config, so
// both the httpd and sshd subcommands build an identical dependency
// graph from the same TOML document.
type wiring struct {
	db        *sql.DB
	objects   *store.ObjectStore
	refs      *refstore.Store
	cls       *cl.Store
	queue     *mergequeue.Store
	processor *mergequeue.Processor
	sessions  *buck.Store
	uploader  *buck.Uploader
	lfsAuth   *lfs.Authenticator
	lfsBatch  *lfs.Batcher
	packCache *pack.Cache
	algorithm digest.Algorithm
	redis     *redis.Client
}

func buildWiring(cfg *config.Config) (*wiring, error) {
	algo, err := cfg.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("mega-serve: %w", err)
	}
	digest.Init(algo)

	db, err := sql.Open("mysql", cfg.Database.MakeConfig().FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("mega-serve: open database: %w", err)
	}

	bytesTier, err := buildBytesTier(cfg.ObjectStorage)
	if err != nil {
		return nil, err
	}
	meta := store.NewMetadataDB(db)
	objects := store.NewObjectStore("mega", meta, bytesTier)

	buckLimits := buck.Limits{GlobalConcurrency: 64, LargeConcurrency: 8, LargeFileThreshold: 64 << 20}
	if cfg.Buck != nil {
		buckLimits = buck.Limits{
			GlobalConcurrency:  cfg.Buck.GlobalPermits,
			LargeConcurrency:   cfg.Buck.LargeFilePermits,
			LargeFileThreshold: cfg.Buck.LargeFileThreshold,
		}
	}

	refs := refstore.New(db)
	clStore := cl.New(db)
	queue := mergequeue.New(db, clStore)
	sessions := buck.New(db, clStore)
	uploader := buck.NewUploader(sessions, objects, buckLimits)

	lfsAuth := lfs.NewAuthenticator([]byte(cfg.LFS.Secret), cfg.LFS.PresignTTL.Duration, cfg.LFS.HTTPSBase)
	lfsBatch := lfs.NewBatcher(bytesTier, "mega", cfg.LFS.PresignTTL.Duration)

	packCache, err := pack.NewCache(cfg.Cache.MaxCost)
	if err != nil {
		return nil, fmt.Errorf("mega-serve: pack cache: %w", err)
	}

	w := &wiring{
		db:        db,
		objects:   objects,
		refs:      refs,
		cls:       clStore,
		queue:     queue,
		sessions:  sessions,
		uploader:  uploader,
		lfsAuth:   lfsAuth,
		lfsBatch:  lfsBatch,
		packCache: packCache,
		algorithm: algo,
	}

	if cfg.MergeQueue.ProcessorEnabled {
		var acquireLock *lock.Lock
		if cfg.Redis != nil {
			w.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			acquireLock = lock.New(w.redis, "mega:merge-queue-processor", cfg.MergeQueue.ProcessorTTL.Duration)
		}
		w.processor = mergequeue.NewProcessor(queue, clStore, objects, refs, acquireLock, mergequeue.DefaultChecker(clStore))
	}

	go sessions.RunExpirySweeper(context.Background(), cfg.Session.TTL.Duration)

	return w, nil
}

func buildBytesTier(cfg *config.ObjectStorage) (store.BytesTier, error) {
	if cfg == nil {
		return store.NewLocalBytesTier("./mega-data"), nil
	}
	switch cfg.Backend {
	case "", "local":
		return store.NewLocalBytesTier(cfg.Root), nil
	default:
		logrus.Warnf("mega-serve: object storage backend %q not wired in this build, falling back to local", cfg.Backend)
		return store.NewLocalBytesTier(cfg.Root), nil
	}
}

func (w *wiring) Close() {
	if w.processor != nil {
		w.processor.Stop()
	}
	if w.redis != nil {
		_ = w.redis.Close()
	}
	if w.db != nil {
		_ = w.db.Close()
	}
}
