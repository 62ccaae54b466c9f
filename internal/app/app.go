package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/lunahub/hub/internal/cacheadapter"
	"github.com/lunahub/hub/internal/config"
	"github.com/lunahub/hub/internal/handlers/authhandler"
	"github.com/lunahub/hub/internal/handlers/billinghandler"
	"github.com/lunahub/hub/internal/handlers/energyhandler"
	"github.com/lunahub/hub/internal/handlers/narrativehandler"
	"github.com/lunahub/hub/internal/httpserver"
	"github.com/lunahub/hub/internal/platform"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/actionrunner"
	"github.com/lunahub/hub/pkg/billing"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
	"github.com/lunahub/hub/pkg/narrative"
	"github.com/lunahub/hub/pkg/orchestration"
	"github.com/lunahub/hub/pkg/ratelimit"
	"github.com/lunahub/hub/pkg/token"
	"github.com/lunahub/hub/pkg/user"
)

// collaborators holds every long-lived component wired from infrastructure,
// shared between api mode and worker mode.
type collaborators struct {
	logger    *slog.Logger
	db        *pgxpool.Pool
	rdb       *redis.Client
	cache     cacheadapter.Adapter
	events    *eventstore.Store
	energy    *energy.Ledger
	energyStr *energy.Store
	limiter   *ratelimit.Limiter
	blocks    *ratelimit.BlockStore
	tokens    *token.Service
	users     *user.Store
	narrator  *narrative.Analyzer
	billingSv *billing.Service
}

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting luna hub",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	c, err := build(ctx, cfg, logger, db, rdb)
	if err != nil {
		return fmt.Errorf("wiring collaborators: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, c, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, c)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// build wires every collaborator that is shared between api and worker mode:
// catalogs, the event store, the energy ledger, the rate limiter, the token
// service, and the narrative analyzer.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*collaborators, error) {
	cache := cacheadapter.New(ctx, rdb, logger)

	actions, err := catalog.LoadActionCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading action catalog: %w", err)
	}
	packs, err := catalog.LoadPackCatalog(cfg.PacksPath)
	if err != nil {
		return nil, fmt.Errorf("loading pack catalog: %w", err)
	}
	rules, err := catalog.LoadRuleCatalog(cfg.RateLimitRulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading rate limit rules: %w", err)
	}

	events := eventstore.NewStore(db)

	energyStore := energy.NewStore(db)
	energyLedger := energy.New(energyStore, events, cache, actions, packs, cfg.StartingEnergy, cfg.UnlimitedBalance, logger)

	blocks := ratelimit.NewBlockStore(db)
	limiter := ratelimit.New(rules, cache, blocks, events, logger)

	signer, err := token.NewSigner(cfg.JWTSigningSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token signer: %w", err)
	}
	accessTTL, err := time.ParseDuration(cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("parsing access token ttl %q: %w", cfg.AccessTokenTTL, err)
	}
	refreshTTL, err := time.ParseDuration(cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("parsing refresh token ttl %q: %w", cfg.RefreshTokenTTL, err)
	}
	specialistTTL, err := time.ParseDuration(cfg.SpecialistTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("parsing specialist token ttl %q: %w", cfg.SpecialistTokenTTL, err)
	}
	tokenStore := token.NewStore(db)
	tokens := token.NewService(signer, tokenStore, events, accessTTL, refreshTTL, specialistTTL, logger)

	users := user.NewStore(db)

	narrator := narrative.NewAnalyzer(events, energyStore, cache, nil, logger)

	billingSv := billing.NewService(billing.NewStubProvider(), energyLedger, packs, events, logger)

	return &collaborators{
		logger:    logger,
		db:        db,
		rdb:       rdb,
		cache:     cache,
		events:    events,
		energy:    energyLedger,
		energyStr: energyStore,
		limiter:   limiter,
		blocks:    blocks,
		tokens:    tokens,
		users:     users,
		narrator:  narrator,
		billingSv: billingSv,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, c *collaborators, metricsReg *prometheus.Registry) error {
	producer := actionrunner.EchoProducer{}

	actionPipeline := orchestration.NewActionPipeline(c.limiter, c.tokens, c.energy, mustActionCatalog(cfg), mustPackCatalog(cfg), producer, c.logger)
	refundPipeline := orchestration.NewRefundPipeline(c.energy, mustActionCatalog(cfg), c.events, c.logger)
	billingPipeline := orchestration.NewBillingPipeline(c.billingSv)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsPath:        cfg.MetricsPath,
	}, c.logger, c.db, c.rdb, metricsReg)

	authH := authhandler.NewHandler(c.users, c.tokens, c.limiter, cfg.CookieName, cfg.CookieSecure, c.logger)
	energyH := energyhandler.NewHandler(c.energy, c.tokens, actionPipeline, refundPipeline, cfg.CookieName, c.logger)
	billingH := billinghandler.NewHandler(billingPipeline, c.events, c.tokens, cfg.CookieName, c.logger)
	narrativeH := narrativehandler.NewHandler(c.events, c.narrator, c.tokens, cfg.CookieName, c.logger)

	srv.Router.Mount("/auth", authH.Routes())
	srv.Router.Mount("/luna/energy", energyH.Routes())
	srv.Router.Mount("/billing", billingH.Routes())
	srv.Router.Mount("/narrative", narrativeH.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// mustActionCatalog and mustPackCatalog re-load the catalogs for the
// orchestration pipelines. Catalogs are small, immutable YAML-backed tables
// loaded once at startup; build already validated the paths parse, so a
// second load here cannot fail in practice.
func mustActionCatalog(cfg *config.Config) *catalog.ActionCatalog {
	c, err := catalog.LoadActionCatalog(cfg.CatalogPath)
	if err != nil {
		panic(err)
	}
	return c
}

func mustPackCatalog(cfg *config.Config) *catalog.PackCatalog {
	c, err := catalog.LoadPackCatalog(cfg.PacksPath)
	if err != nil {
		panic(err)
	}
	return c
}

// runWorker runs the background maintenance loop: reaping expired rate-limit
// blocks and warming the narrative cache for recently active users. Neither
// task is user-facing, so a failed tick is logged and retried on the next
// interval rather than terminating the process.
func runWorker(ctx context.Context, cfg *config.Config, c *collaborators) error {
	interval, err := time.ParseDuration(cfg.WorkerTickInterval)
	if err != nil {
		return fmt.Errorf("parsing worker tick interval %q: %w", cfg.WorkerTickInterval, err)
	}

	c.logger.Info("worker started", "tick_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("worker stopping")
			return nil
		case <-ticker.C:
			tick(ctx, c)
		}
	}
}

func tick(ctx context.Context, c *collaborators) {
	reaped, err := c.blocks.ReapExpired(ctx)
	if err != nil {
		c.logger.Error("reaping expired rate limit blocks", "error", err)
	} else if reaped > 0 {
		c.logger.Info("reaped expired rate limit blocks", "count", reaped)
	}

	since := time.Now().Add(-15 * time.Minute)
	userIDs, err := c.events.RecentlyActiveUserIDs(ctx, since, 200)
	if err != nil {
		c.logger.Error("listing recently active users", "error", err)
		return
	}
	for _, userID := range userIDs {
		if _, err := c.narrator.Context(ctx, userID); err != nil {
			c.logger.Warn("warming narrative cache", "user_id", userID, "error", err)
		}
	}
	if len(userIDs) > 0 {
		c.logger.Info("warmed narrative cache", "users", len(userIDs))
	}
}
