package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	cache "github.com/krisalay/tlru"
	"github.com/krisalay/tlru/config"
	"github.com/krisalay/tlru/engine"
	"github.com/krisalay/tlru/eviction"
	"github.com/krisalay/tlru/expiration"
	"github.com/krisalay/tlru/refresh"
	"github.com/krisalay/tlru/server"
	"github.com/krisalay/tlru/store"
	"github.com/krisalay/tlru/types"
	"github.com/krisalay/tlru/writepolicy"
)

func main() {
	cfgPath := flag.String("config", "tlrud.yaml", "path to config file")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if err := cfg.Log.Apply(log); err != nil {
		log.WithError(err).Fatal("log config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("tlrud stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	stats := &types.Stats{}
	eng := engine.NewCacheEngine[string, []byte](expirationFor(cfg.Cache), nil, nil, nil, stats)
	eng.Log = log

	var c *cache.ShardedCache[string, []byte]

	if cfg.Store.Driver != "" {
		db, err := store.Open(cfg.Store)
		if err != nil {
			return err
		}
		st, err := store.New(db, 0)
		if err != nil {
			return err
		}
		eng.Loader = st

		switch cfg.Store.WriteMode {
		case config.WriteThrough:
			eng.WritePolicy = writepolicy.NewWriteThroughPolicy[string, []byte](st, log)
		case config.WriteBack:
			eng.WritePolicy = writepolicy.NewWriteBackPolicy[string, []byte](st, cfg.Store.WriteBuffer, log)
		}
		if cfg.Cache.RefreshAhead > 0 {
			eng.Refresh = refresh.NewAhead[string, []byte](cfg.Cache.RefreshAhead, func(ctx context.Context, key string) error {
				v, err := st.Load(ctx, key)
				if err != nil {
					return err
				}
				c.PutWithTTL(key, v, eng.DefaultTTL())
				return nil
			}, log)
		}
		log.WithFields(logrus.Fields{"driver": cfg.Store.Driver, "write_mode": cfg.Store.WriteMode}).Info("store attached")
	}

	var err error
	c, err = cache.NewShardedCache(cache.Options[string]{
		Capacity:    cfg.Cache.Capacity,
		Shards:      cfg.Cache.Shards,
		Policy:      eviction.PolicyType(strings.ToUpper(cfg.Cache.Policy)),
		Granularity: cfg.Cache.Granularity,
		WheelSlots:  cfg.Cache.WheelSlots,
	}, eng)
	if err != nil {
		return err
	}
	defer c.Close()

	sweeper := cache.NewSweeper(c, cfg.Cache.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(c, stats, cfg.APIToken, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", cfg.Listen).Info("tlrud listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// expirationFor maps the cache section onto an expiration strategy.
func expirationFor(cfg config.CacheConfig) expiration.Strategy {
	if cfg.RefreshTTLOnRead {
		return &expiration.ExpireAfterAccess{TTL: cfg.DefaultTTL}
	}
	return &expiration.ExpireAfterWrite{TTL: cfg.DefaultTTL}
}
