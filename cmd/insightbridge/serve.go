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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/insightbridge/insightbridge/internal/governance"
	"github.com/insightbridge/insightbridge/internal/replay"
	"github.com/insightbridge/insightbridge/internal/score"
	"github.com/insightbridge/insightbridge/pkg/config"
	"github.com/insightbridge/insightbridge/pkg/domain"
	"github.com/insightbridge/insightbridge/pkg/engine"
	"github.com/insightbridge/insightbridge/pkg/logging"
	"github.com/insightbridge/insightbridge/pkg/policy"
	"github.com/insightbridge/insightbridge/pkg/server"
	"github.com/insightbridge/insightbridge/pkg/telemetry"
	"github.com/insightbridge/insightbridge/pkg/token"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE:  runServe,
	}

	serveCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides config)")
	serveCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("failed to get addr flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Logging.Level})
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelShutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "insightbridge",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("Using Redis backend", "addr", cfg.Redis.Address)
	}

	publicKeyPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath) //nolint:gosec // Key path is controlled by admin/operator
	if err != nil {
		return fmt.Errorf("failed to read public key %s: %w", cfg.Auth.PublicKeyPath, err)
	}
	verifier, err := token.NewVerifier(publicKeyPEM, cfg.Auth.Algorithm, cfg.Auth.ClockDrift)
	if err != nil {
		return fmt.Errorf("verifier setup: %w", err)
	}

	limiterConfig := governance.RateLimiterConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
	}
	var limiter interface {
		domain.AdmissionLimiter
		Configure(governance.RateLimiterConfig)
	}
	if redisClient != nil {
		limiter = governance.NewRedisRateLimiter(redisClient, limiterConfig, logger)
	} else {
		limiter = governance.NewRateLimiter(limiterConfig)
	}

	var guard domain.ReplayGuard
	var memLedger *replay.Ledger
	if redisClient != nil {
		guard = replay.NewRedisLedger(redisClient, logger)
	} else {
		memLedger = replay.NewLedger(cfg.Replay.MaxEntries, cfg.Replay.PurgeInterval)
		guard = memLedger
	}

	scores := buildScoreSource(cfg, redisClient, logger)

	classifier, err := policy.NewClassifier(ctx)
	if err != nil {
		return fmt.Errorf("classifier setup: %w", err)
	}

	metrics := telemetry.NewMetrics()
	emitter := telemetry.NewEmitter(logger, metrics)

	eng := engine.New(engine.Deps{
		Verifier:   verifier,
		Limiter:    limiter,
		Replay:     guard,
		Scores:     scores,
		Emitter:    emitter,
		Classifier: classifier,
		Thresholds: cfg.Score.Thresholds(),
		Logger:     logger,
	})

	// Hot reload: threshold and rate limit changes apply without restart.
	var provider *config.FileProvider
	if configPath != "" {
		provider, err = config.NewFileProvider(configPath, logger)
		if err != nil {
			logger.Warn("Config hot reload disabled", "error", err)
		} else {
			go func() {
				for snap := range provider.Subscribe() {
					eng.SetThresholds(snap.Thresholds)
					limiter.Configure(governance.RateLimiterConfig{
						RequestsPerMinute: snap.RateLimit.RequestsPerMinute,
						BurstSize:         snap.RateLimit.BurstSize,
					})
					logger.Info("Configuration reloaded",
						"generation", snap.Generation,
						"allow_threshold", snap.Thresholds.Allow,
						"monitor_threshold", snap.Thresholds.Monitor,
					)
				}
			}()
		}
	}

	serverCfg := server.Config{
		Engine:  eng,
		Replay:  guard,
		Metrics: metrics,
		Logger:  logger,
		Version: version,
	}
	if redisClient != nil {
		serverCfg.CheckBackend = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	srv := server.New(serverCfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      otelhttp.NewHandler(srv.Routes(), "gateway"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting gateway",
			"addr", cfg.Server.Address,
			"algorithm", cfg.Auth.Algorithm,
			"score_backend", cfg.Score.Backend,
			"version", version,
		)
		errCh <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}
	if provider != nil {
		_ = provider.Close()
	}
	if memLedger != nil {
		memLedger.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Error("Telemetry shutdown error", "error", err)
	}

	logger.Info("Gateway stopped")
	return nil
}

// buildScoreSource assembles the score resolution chain: backend, circuit
// breaker, then cache.
func buildScoreSource(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) domain.ScoreSource {
	var src domain.ScoreSource
	switch cfg.Score.Backend {
	case "http":
		src = score.NewHTTPSource(cfg.Score.URL, cfg.Score.APIKey, cfg.Score.Timeout)
		src = score.NewBreakerSource(src, governance.NewCircuitBreaker(governance.DefaultCircuitBreakerConfig()))
	default:
		src = score.NewStaticSource(cfg.Score.Static)
	}

	if cfg.Score.CacheTTL <= 0 {
		return src
	}
	if redisClient != nil {
		return score.NewRedisCachedSource(src, redisClient, cfg.Score.CacheTTL, logger)
	}
	return score.NewCachedSource(src, cfg.Score.CacheTTL, 0)
}
