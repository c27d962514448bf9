// Package main runs the whale allocator: event ingestion, whale lifecycle
// management, the periodic re-evaluation sweep and the dashboard API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"whale-allocator/internal/config"
	"whale-allocator/internal/decision"
	"whale-allocator/internal/discovery"
	"whale-allocator/internal/domain"
	"whale-allocator/internal/ethrpc"
	"whale-allocator/internal/executor"
	"whale-allocator/internal/lifecycle"
	"whale-allocator/internal/monitoring"
	"whale-allocator/internal/profitability"
	"whale-allocator/internal/scoring"
	"whale-allocator/internal/storage"
	chstore "whale-allocator/internal/storage/clickhouse"
	"whale-allocator/internal/storage/memory"
	pgstore "whale-allocator/internal/storage/postgres"
	"whale-allocator/internal/web"
)

func main() {
	// .env is optional, system env wins.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML config file")
	mode := flag.String("mode", "", "Run mode override: LIVE, DRY_RUN or TEST")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if *mode != "" {
		cfg.Mode = *mode
		if err := cfg.Validate(); err != nil {
			logger.Fatal().Err(err).Msg("validate config")
		}
	}
	logger.Info().Str("mode", cfg.Mode).Msg("starting allocator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("create stores")
	}
	defer cleanup()

	app, err := buildApp(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build application")
	}
	defer app.close()

	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case <-sigCh:
			logger.Error().Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = app.run(ctx, cfg)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("allocator failed")
	}
	logger.Info().Msg("shutdown complete")
}

// stores groups the storage implementations behind their interfaces.
type stores struct {
	whales  storage.WhaleStore
	history storage.ScoreHistoryStore // nil without ClickHouse
}

// createStores builds memory or postgres/clickhouse backed storage, applying
// migrations on startup.
func createStores(ctx context.Context, cfg *config.Config) (*stores, func(), error) {
	if cfg.UseMemory {
		return &stores{
			whales:  memory.NewWhaleStore(),
			history: memory.NewScoreHistoryStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.ApplyMigrations(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	s := &stores{whales: pgstore.NewWhaleStore(pool)}
	cleanup := func() { pool.Close() }

	if cfg.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := conn.ApplyMigrations(ctx); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
		}
		s.history = chstore.NewScoreHistoryStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return s, cleanup, nil
}

// app holds the wired components.
type app struct {
	manager *lifecycle.Manager
	runner  *monitoring.Runner
	web     *web.Server
	ws      *ethrpc.WSClient
	log     zerolog.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, st *stores, logger zerolog.Logger) (*app, error) {
	engine := scoring.NewEngine(cfg.Scoring)

	manager := lifecycle.NewManager(lifecycle.Options{
		Store:   st.whales,
		History: st.history,
		Engine:  engine,
		Config:  cfg.Lifecycle,
		Logger:  logger,
	})

	var validator discovery.Validator
	if cfg.Profitability.Enabled {
		validator = profitability.New(profitability.Options{
			BaseURL:  cfg.Profitability.BaseURL,
			APIKey:   cfg.Profitability.APIKey,
			Criteria: cfg.Profitability.Criteria,
			CacheTTL: cfg.Profitability.CacheTTL(),
			Logger:   logger,
		})
	}

	coordinator := discovery.NewCoordinator(discovery.Options{
		Store:     st.whales,
		Validator: validator,
		Config:    cfg.Discovery,
		Logger:    logger,
	})

	decisionMode := domain.ModeSimulated
	var exec executor.Executor
	if cfg.Mode == config.ModeLive {
		decisionMode = domain.ModeReal
		exec = executor.NewLogging(logger)
	}
	decider, err := decision.NewEngine(decision.Options{
		Mode:     decisionMode,
		Executor: exec,
		Sizing:   decision.DefaultSizing(cfg.CapitalConfig()),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create decision engine: %w", err)
	}

	parser := monitoring.NewTradeParser(cfg.Routers, cfg.EthPriceUSD)

	var sources []monitoring.EventSource
	var ws *ethrpc.WSClient
	if cfg.Mode != config.ModeTest {
		rpc := ethrpc.NewClient(cfg.RPCEndpoint)
		sources = append(sources,
			monitoring.NewBlockSource(rpc, parser, cfg.PollInterval(), cfg.StartBlock, logger))

		// The mempool feed only runs in dry-run mode, where provisional
		// trades are worth watching.
		if cfg.Mode == config.ModeDryRun {
			ws, err = ethrpc.NewWSClient(ctx, cfg.WSEndpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("connect mempool websocket: %w", err)
			}
			sources = append(sources, monitoring.NewMempoolSource(rpc, ws, parser, logger))
		}
	}

	runner := monitoring.NewRunner(monitoring.RunnerOptions{
		Store:             st.whales,
		Coordinator:       coordinator,
		Lifecycle:         manager,
		Decision:          decider,
		Sources:           sources,
		Shards:            cfg.Shards,
		IngestProvisional: cfg.Mode == config.ModeDryRun,
		Logger:            logger,
	})

	server := web.NewServer(web.Options{
		Store:     st.whales,
		History:   st.history,
		Lifecycle: manager,
		Mode:      cfg.Mode,
		Logger:    logger,
	})

	return &app{
		manager: manager,
		runner:  runner,
		web:     server,
		ws:      ws,
		log:     logger,
	}, nil
}

func (a *app) close() {
	if a.ws != nil {
		a.ws.Close()
	}
}

// run starts the dashboard, the sweeper and the ingestion runner, and blocks
// until the context is cancelled or a component fails.
func (a *app) run(ctx context.Context, cfg *config.Config) error {
	errCh := make(chan error, 2)

	go func() {
		if err := a.web.Run(ctx, cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("dashboard: %w", err)
		}
	}()

	go a.manager.RunSweeper(ctx)

	go func() {
		if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("runner: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
