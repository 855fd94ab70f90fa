package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kanban/api/internal/app"
	"kanban/api/internal/config"
	"kanban/api/internal/engine"
	"kanban/api/internal/search"
	"kanban/api/internal/session"
	"kanban/api/internal/store"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

DATABASE_URL=memory runs on an in-process store that is lost on exit.
Otherwise pending migrations are applied before the listener opens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := stderrLogger(rootOpts.Config)
			return serve(ctx, rootOpts.Config, logger, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on startup")
	return cmd
}

// retryPolicy derives the move retry policy from configuration.
func retryPolicy(cfg config.Config) engine.RetryPolicy {
	policy := engine.DefaultRetryPolicy()
	if cfg.MoveMaxAttempts > 0 {
		policy.MaxAttempts = cfg.MoveMaxAttempts
	}
	if cfg.MoveBaseDelay > 0 {
		policy.BaseDelay = cfg.MoveBaseDelay
	}
	return policy
}

// checkBudget refuses configurations where a fully retried move could
// outlive the request that started it.
func checkBudget(cfg config.Config) error {
	if cfg.RequestTimeout <= 0 {
		return nil
	}
	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = engine.DefaultTxTimeout
	}
	budget := retryPolicy(cfg).Budget(txTimeout)
	if budget > cfg.RequestTimeout {
		return fmt.Errorf("move retry budget %s exceeds request timeout %s: lower KANBAN_MOVE_MAX_ATTEMPTS or KANBAN_TX_TIMEOUT_MS", budget, cfg.RequestTimeout)
	}
	return nil
}

type stack struct {
	handler http.Handler
	search  *search.Service
	closers []func()
}

func (r *stack) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newStack(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*stack, error) {
	if err := checkBudget(cfg); err != nil {
		return nil, err
	}
	rt := &stack{}

	var (
		dataStore store.Store
		fallback  search.Searcher
		pgfts     *search.PgFTS
	)
	if cfg.UseMemoryStore() {
		logger.Warn("using in-memory store; data is lost on exit")
		memory := store.NewMemoryStore()
		dataStore = memory
		fallback = search.NewScan(memory)
	} else {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DBMaxOpen, MaxIdleConns: cfg.DBMaxIdle})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if migrate {
			migrations, err := store.Migrations(cfg.MigrationsDir)
			if err != nil {
				rt.Close()
				return nil, err
			}
			if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
				rt.Close()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		dataStore = store.NewPostgresStore(db)
		pgfts = search.NewPgFTS(db)
		fallback = pgfts
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	rt.search = search.NewService(meiliClient, fallback, pgfts, logger)
	rt.closers = append(rt.closers, rt.search.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	eng := engine.New(dataStore, engine.Options{
		TxTimeout: cfg.TxTimeout,
		Retry:     retryPolicy(cfg),
		Logger:    logger,
		Metrics:   engine.NewMetrics(reg),
	})

	var actors app.ChainResolver
	if strings.TrimSpace(cfg.RedisURL) != "" {
		sessions, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = sessions.Close() })
		actors = append(actors, app.NewSessionResolver(sessions))
	}
	if cfg.TrustActorHeader {
		actors = append(actors, app.HeaderResolver{})
	}
	if len(actors) == 0 {
		logger.Warn("no actor source configured; board routes will answer 401")
	}

	service := app.New(dataStore, eng, rt.search, logger)
	rt.handler = app.NewHTTPServer(service, actors, app.HTTPOptions{
		CORSOrigin:     cfg.CORSOrigin,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         logger,
	}).Handler()
	return rt, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newStack(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("kanban API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rt.search.ReindexAll(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
