// Package server wires clinicauth into a running process: configuration,
// logging, storage, rate limiting, mail delivery and the HTTP listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/httpapi"
	"github.com/MrEthical07/clinicauth/internal/rate"
	promexport "github.com/MrEthical07/clinicauth/metrics/export/prometheus"
	"github.com/MrEthical07/clinicauth/store/memory"
	"github.com/MrEthical07/clinicauth/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type store interface {
	clinicauth.UserStore
	clinicauth.RoleStore
}

// App owns every long-lived dependency of the process.
type App struct {
	cfg      *Config
	log      *zap.Logger
	engine   *clinicauth.Engine
	pg       *postgres.Store
	redis    *redis.Client
	limiter  rate.Limiter
	notifier clinicauth.Notifier
}

// New opens storage, builds the engine and seeds the system roles.
func New(ctx context.Context, cfg *Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log}

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine, err = clinicauth.New().
		WithConfig(engCfg).
		WithUserStore(st).
		WithRoleStore(st).
		WithLogger(log).
		WithAuditSink(clinicauth.NewZapSink(log.Named("audit"))).
		Build()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	if _, err := a.engine.SeedSystemRoles(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed system roles: %w", err)
	}

	if err := a.openLimiter(); err != nil {
		a.Close()
		return nil, err
	}

	if n := NewMailNotifier(cfg, log.Named("mail")); n != nil {
		a.notifier = n
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store, error) {
	if a.cfg.Storage.Driver != "postgres" {
		a.log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}

	pg, err := postgres.Open(ctx, a.cfg.Storage.DSN, postgres.Options{
		MaxConns:        a.cfg.Storage.MaxConns,
		MinConns:        a.cfg.Storage.MinConns,
		ConnMaxLifetime: a.cfg.Storage.ConnMaxLifetime,
		ConnMaxIdleTime: a.cfg.Storage.ConnMaxIdleTime,
	}, a.log.Named("postgres"))
	if err != nil {
		return nil, err
	}
	a.pg = pg

	if a.cfg.Storage.MigrateOnStart {
		if _, err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return pg, nil
}

func (a *App) openLimiter() error {
	if !a.cfg.Rate.Enabled {
		return nil
	}
	rc := rate.Config{Limit: a.cfg.Rate.Limit, Window: a.cfg.Rate.Window}

	if a.cfg.Rate.Backend == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Rate.Redis.Addr,
			Password: a.cfg.Rate.Redis.Password,
			DB:       a.cfg.Rate.Redis.DB,
		})
		l, err := rate.NewRedis(a.redis, rc)
		if err != nil {
			return err
		}
		a.limiter = l
		return nil
	}

	l, err := rate.NewMemory(rc)
	if err != nil {
		return err
	}
	a.limiter = l
	return nil
}

// Engine returns the built engine.
func (a *App) Engine() *clinicauth.Engine { return a.engine }

// Handler is the API router.
func (a *App) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.Options{
		Engine:            a.engine,
		Limiter:           a.limiter,
		Notifier:          a.notifier,
		ExposeTokens:      a.cfg.HTTP.ExposeTokens,
		TrustProxyHeaders: a.cfg.HTTP.TrustProxyHeaders,
		Ready:             a.ready,
		Logger:            a.log.Named("http"),
	})
}

// MetricsHandler serves the Prometheus exposition.
func (a *App) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewCollector(a.engine).Handler())
	return mux
}

func (a *App) ready(ctx context.Context) error {
	if a.pg != nil {
		if err := a.pg.Ping(ctx); err != nil {
			return err
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Run serves the API and, when configured, the metrics listener until ctx
// ends or a listener fails. Both listeners are drained on the way out.
func (a *App) Run(ctx context.Context) error {
	api := a.httpServer(a.cfg.HTTP.Addr, a.Handler())
	servers := []*http.Server{api}
	if a.cfg.HTTP.MetricsAddr != "" {
		servers = append(servers, a.httpServer(a.cfg.HTTP.MetricsAddr, a.MetricsHandler()))
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, open := range listeners {
				_ = open.Close()
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		a.log.Info("listening", zap.String("addr", ln.Addr().String()))
		listeners = append(listeners, ln)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		ln := listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		a.log.Info("listeners stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (a *App) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		ErrorLog:          zap.NewStdLog(a.log.Named("http")),
	}
}

// Close releases the engine, the pool and the Redis client.
func (a *App) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
