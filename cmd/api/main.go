package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/devconnector/internal/auth"
	"github.com/geocoder89/devconnector/internal/cache"
	"github.com/geocoder89/devconnector/internal/config"
	"github.com/geocoder89/devconnector/internal/db"
	"github.com/geocoder89/devconnector/internal/github"
	httpx "github.com/geocoder89/devconnector/internal/http"
	"github.com/geocoder89/devconnector/internal/http/handlers"
	"github.com/geocoder89/devconnector/internal/observability"
	"github.com/geocoder89/devconnector/internal/repo/memory"
	mongorepo "github.com/geocoder89/devconnector/internal/repo/mongo"
	"github.com/geocoder89/devconnector/internal/repo/postgres"
	"github.com/geocoder89/devconnector/internal/security"
	"github.com/geocoder89/devconnector/internal/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// stores is the backend chosen by STORE_DRIVER.
type stores struct {
	users    httpx.UserStore
	profiles cache.ProfileStore
	checks   map[string]handlers.Pinger
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom) (stores, error) {
	switch cfg.StoreDriver {
	case "postgres":
		if err := db.Migrate(ctx, cfg.DBURL); err != nil {
			return stores{}, err
		}

		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return stores{}, err
		}

		return stores{
			users:    postgres.NewUsersRepo(pool, prom),
			profiles: postgres.NewProfilesRepo(pool, prom),
			checks:   map[string]handlers.Pinger{"postgres": pool.Ping},
			close:    pool.Close,
		}, nil

	case "mongo":
		client, mdb, err := db.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return stores{}, err
		}

		return stores{
			users:    mongorepo.NewUsersRepo(mdb, prom),
			profiles: mongorepo.NewProfilesRepo(mdb, prom),
			checks: map[string]handlers.Pinger{
				"mongo": func(ctx context.Context) error { return client.Ping(ctx, nil) },
			},
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case "memory":
		st := memory.NewStore()

		return stores{
			users:    st.Users(),
			profiles: st.Profiles(),
			checks:   map[string]handlers.Pinger{"memory": st.Ping},
			close:    func() {},
		}, nil

	default:
		return stores{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "devconnector",
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, prom)
	if err != nil {
		return err
	}
	defer st.close()

	// public profile reads go through a cache; redis when configured
	var store cache.Store = cache.NewMemory(cfg.CacheTTL)
	if cfg.RedisAddr != "" {
		rs := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		defer rs.Close()

		store = rs
		st.checks["redis"] = rs.Ping
	}

	pool := workpool.New(cfg.HashWorkers, prom)
	health := handlers.NewHealthHandler(st.checks)

	router := httpx.NewRouter(httpx.Deps{
		Config:   cfg,
		Users:    st.users,
		Profiles: cache.NewCachedProfiles(st.profiles, store, prom),
		Hasher:   security.NewHasher(cfg.BcryptCost, pool),
		Tokens:   auth.NewManager(cfg.JWTSecret, cfg.TokenTTL()),
		Pool:     pool,
		GitHub:   github.NewBreaker(github.NewClient("", cfg.GitHubToken), github.BreakerConfig{}),
		Health:   health,
		Prom:     prom,
		Gatherer: reg,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	health.Drain()

	sctx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}
