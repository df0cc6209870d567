// Command concierge is the conversational gateway of the Grand Hotel: it
// mediates between a chat frontend and the hotel REST backend through an LLM
// with function calling.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/grandhotel/concierge/internal/agent"
	"github.com/grandhotel/concierge/internal/backend"
	"github.com/grandhotel/concierge/internal/config"
	"github.com/grandhotel/concierge/internal/gateway"
	"github.com/grandhotel/concierge/internal/health"
	"github.com/grandhotel/concierge/internal/lang"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/ratelimit"
	"github.com/grandhotel/concierge/internal/resilience"
	"github.com/grandhotel/concierge/internal/session"
	"github.com/grandhotel/concierge/internal/tools"
	"github.com/grandhotel/concierge/internal/turn"
	"github.com/grandhotel/concierge/pkg/provider/llm"
	"github.com/grandhotel/concierge/pkg/provider/llm/anyllm"
	"github.com/grandhotel/concierge/pkg/provider/llm/openai"
	"github.com/grandhotel/concierge/pkg/provider/tts"
	"github.com/grandhotel/concierge/pkg/provider/tts/elevenlabs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "concierge: %v\n", err)
		return 1
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("concierge starting",
		"version", version,
		"listen_addr", cfg.ListenAddr,
		"app_env", cfg.AppEnv,
		"llm_provider", cfg.LLMProvider,
		"model_main", cfg.LLMModelMain,
		"model_detect", cfg.LLMModelDetect,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers (metrics via the Prometheus bridge).
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "concierge",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// Redis backs both session memory and the per-session rate limiter.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "err", err)
		return 1
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	store := session.NewRedisStore(redisClient, cfg.SessionTTL, logger)
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitPerMin, logger)

	mainModel, detectModel, err := buildLLMProviders(cfg)
	if err != nil {
		slog.Error("failed to build LLM providers", "err", err)
		return 1
	}
	// A circuit breaker in front of the dialogue model stops a down API from
	// being hammered on every turn.
	mainModel = resilience.NewLLMFallback(mainModel, cfg.LLMProvider, resilience.FallbackConfig{})

	registry, err := tools.NewRegistry()
	if err != nil {
		slog.Error("failed to load tool catalogue", "err", err)
		return 1
	}

	backendClient := backend.New(cfg.BackendURL, logger,
		backend.WithTimeout(cfg.BackendTimeout))

	orchestrator := agent.New(mainModel, registry, backendClient,
		cfg.MaxFCRounds, metrics, logger)
	detector := lang.New(detectModel, logger)

	var synth tts.Provider
	if cfg.TTSAPIKey != "" {
		var opts []elevenlabs.Option
		if cfg.TTSModelID != "" {
			opts = append(opts, elevenlabs.WithModel(cfg.TTSModelID))
		}
		el, err := elevenlabs.New(cfg.TTSAPIKey, cfg.TTSVoiceID, opts...)
		if err != nil {
			slog.Error("failed to build TTS provider", "err", err)
			return 1
		}
		synth = resilience.NewTTSFallback(el, "elevenlabs", resilience.FallbackConfig{})
		slog.Info("voice output enabled", "voice_id", cfg.TTSVoiceID)
	}

	controller := turn.NewController(store, limiter, detector, orchestrator,
		synth, cfg.SessionMaxMessages, cfg.TurnDeadline, metrics, logger)

	healthHandler := health.New(version, health.Checker{
		Name:  "redis",
		Check: store.HealthCheck,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gateway.NewServer(controller, healthHandler, metrics, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildLLMProviders returns the main dialogue model and the cheaper detection
// model. OpenAI goes through the native client; everything else through
// any-llm.
func buildLLMProviders(cfg *config.Config) (mainModel, detectModel llm.Provider, err error) {
	build := func(model string) (llm.Provider, error) {
		if cfg.LLMProvider == "openai" {
			return openai.New(cfg.LLMAPIKey, model)
		}
		var opts []anyllmlib.Option
		if cfg.LLMAPIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.LLMAPIKey))
		}
		return anyllm.New(cfg.LLMProvider, model, opts...)
	}

	if mainModel, err = build(cfg.LLMModelMain); err != nil {
		return nil, nil, fmt.Errorf("main model: %w", err)
	}
	if detectModel, err = build(cfg.LLMModelDetect); err != nil {
		return nil, nil, fmt.Errorf("detect model: %w", err)
	}
	return mainModel, detectModel, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.LogLevel {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.AppEnv == config.EnvProduction {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
