// Command match-tender is the entrypoint for the Dota match tracker bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the user registry (JSON file or Postgres with migrations).
//   - Connects to the configured chat platform (Discord or Twitch).
//   - Polls OpenDota on a fixed delay and posts new match reports.
//   - Exposes an ops HTTP server with /healthz, /readyz, /status, /metrics and /admin.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/match-tender/ai"
	"github.com/onnwee/match-tender/chat"
	"github.com/onnwee/match-tender/commands"
	"github.com/onnwee/match-tender/config"
	"github.com/onnwee/match-tender/discord"
	"github.com/onnwee/match-tender/opendota"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/registrystore"
	"github.com/onnwee/match-tender/report"
	"github.com/onnwee/match-tender/server"
	"github.com/onnwee/match-tender/telemetry"
	"github.com/onnwee/match-tender/tracker"
	"github.com/onnwee/match-tender/twitchapi"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// platform is a connected chat adapter.
type platform interface {
	tracker.SinkProvider
	tracker.Directory
	Run(ctx context.Context) error
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfigFromEnv(), "match-tender", version)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	store, err := registrystore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open registry store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close registry store", slog.Any("err", err))
		}
	}()
	reg, err := registry.Open(ctx, store.Store)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	telemetry.SetRegisteredUsers(reg.Len())
	slog.Info("registry loaded", slog.Int("users", reg.Len()), slog.String("backend", cfg.RegistryBackend))

	var odOpts []opendota.Option
	if cfg.OpenDotaAPIKey != "" {
		odOpts = append(odOpts, opendota.WithAPIKey(cfg.OpenDotaAPIKey))
	}
	stats := opendota.NewClient(cfg.OpenDotaBaseURL, cfg.OpenDotaRequestsPerMinute, cfg.RequestTimeout(), odOpts...)

	router := &commands.Router{
		Prefix:        cfg.CommandPrefix,
		Registry:      reg,
		MaxMessageLen: cfg.MaxMessageLen(),
	}
	if cfg.OpenRouterAPIKey != "" {
		aiClient := ai.NewClient(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.AIModel, 2*cfg.RequestTimeout())
		router.AI = ai.NewAssistant(aiClient, cfg.AIMaxHistory)
		router.Matches = stats
	} else {
		slog.Info("OPENROUTER_API_KEY not set; AI commands disabled")
	}

	var bot platform
	switch cfg.Platform {
	case config.PlatformTwitch:
		router.ValidUserID = commands.IsValidTwitchID
		var users chat.Users
		if ts, err := twitchapi.NewTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, "", nil); err == nil {
			users = twitchapi.NewHelixClient("", cfg.TwitchClientID, ts, cfg.RequestTimeout())
		} else {
			slog.Info("twitch helix lookups disabled", slog.Any("err", err))
		}
		bot = chat.New(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannel, router, users)
	default:
		router.ValidUserID = commands.IsValidDiscordID
		d, err := discord.New(cfg.DiscordBotToken, router, cfg.NotifyChannel)
		if err != nil {
			return err
		}
		bot = d
	}

	engine := &tracker.Engine{
		Registry:    reg,
		Stats:       stats,
		Reports:     report.NewBuilder(stats),
		Sinks:       bot,
		Directory:   bot,
		CallTimeout: cfg.RequestTimeout(),
	}
	router.Stats = engine
	scheduler := tracker.NewScheduler(engine, cfg.PollInterval(), cfg.PollOnStart)

	handlers := &server.Handlers{Registry: reg, Status: engine, Poller: scheduler}
	if store.DB != nil {
		handlers.Checks = append(handlers.Checks, server.Check{Name: "database", Fn: store.DB.PingContext})
	}
	handlers.Checks = append(handlers.Checks, server.Check{Name: "chat", Fn: func(ctx context.Context) error {
		_, err := bot.TrackerSink(ctx)
		return err
	}})
	httpHandler := server.NewRouter(ctx, handlers, server.Options{
		Auth:      server.AuthConfig{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Token: cfg.AdminToken},
		RateLimit: server.RateLimitConfig{Enabled: cfg.RateLimitEnabled, RequestsPerMinute: cfg.RateLimitRequestsPerMinute},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr, httpHandler) })
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error {
		if err := scheduler.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	slog.Info("match-tender started", slog.String("platform", cfg.Platform), slog.String("http_addr", cfg.HTTPAddr))
	err = g.Wait()
	slog.Info("shutdown complete")
	return err
}
