package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/billing"
	"github.com/clipforge/clipforge/internal/clips"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/media"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir(), 0755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge server", "version", config.Version, "data_dir", cfg.DataDir())

	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	prober, err := media.NewFFprobe(cfg.FFprobePath(), cfg.ProbeTimeout(), logging.WithComponent(logger, "probe"))
	if err != nil {
		return fmt.Errorf("failed to initialize probe tool: %w", err)
	}

	renderer, err := media.NewFFmpeg(cfg.FFmpegPath(), cfg.ClipsDir(), cfg.RenderTimeout(), logging.WithComponent(logger, "render"))
	if err != nil {
		return fmt.Errorf("failed to initialize render tool: %w", err)
	}

	var strategy clips.Strategy = clips.UniformStrategy{}
	if cfg.PlanStrategy() == config.AdvisedPlanStrategy {
		var advisor clips.Advisor = clips.FallbackAdvisor{}
		if cfg.AdvisorURL() != "" {
			advisor = clips.NewHTTPAdvisor(cfg.AdvisorURL(), cfg.AdvisorToken(), logging.WithComponent(logger, "advisor"))
		}
		strategy = clips.AdvisedStrategy{Advisor: advisor, Logger: logger}
	}

	var debiter clips.Debiter
	if cfg.BillingURL() != "" {
		debiter = billing.NewHTTPClient(cfg.BillingURL(), cfg.BillingToken(), logging.WithComponent(logger, "billing"))
	} else {
		debiter = billing.NewStubService(logging.WithComponent(logger, "billing"))
	}

	orchestrator := clips.NewOrchestrator(store, prober, renderer, strategy, debiter, clips.Policy{
		ClipCount:         cfg.ClipCount(),
		ClipLengthDefault: cfg.ClipLengthDefault(),
		ClipLengthMin:     cfg.ClipLengthMin(),
		ClipLengthMax:     cfg.ClipLengthMax(),
		ClipCost:          cfg.ClipCost(),
	}, logging.WithComponent(logger, "orchestrator"))

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Store:          store,
		Orchestrator:   orchestrator,
		UploadDir:      cfg.UploadDir(),
		ClipsDir:       cfg.ClipsDir(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logging.WithComponent(logger, "api"),
		StartTime:      startTime,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStore selects the job store backend. SQLite is the default; Redis is
// available for deployments that already run one.
func buildStore(cfg config.Config, logger *slog.Logger) (clips.Store, func(), error) {
	if cfg.StoreBackend() == config.RedisStoreBackend {
		opt, err := redis.ParseURL(cfg.RedisURL())
		if err != nil {
			return nil, nil, fmt.Errorf("invalid %s: %w", config.EnvRedisURL, err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("using redis job store", "addr", opt.Addr)
		return clips.NewRedisStore(rdb, cfg.JobTTL()), func() { rdb.Close() }, nil
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("using sqlite job store", "path", cfg.DBPath())
	return clips.NewSQLiteStore(database.Conn()), func() { database.Close() }, nil
}
