// finalstream server: streams only the final answer of an LLM run to
// clients over server-sent events, newline-delimited JSON or websockets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/finalstream/pkg/api"
	"github.com/codeready-toolchain/finalstream/pkg/cleanup"
	"github.com/codeready-toolchain/finalstream/pkg/config"
	"github.com/codeready-toolchain/finalstream/pkg/ledger"
	"github.com/codeready-toolchain/finalstream/pkg/llm"
	"github.com/codeready-toolchain/finalstream/pkg/session"
	"github.com/codeready-toolchain/finalstream/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	if err := run(*configDir); err != nil {
		slog.Error("finalstream exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Configuration and logging
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	slog.SetDefault(slog.New(newLogHandler(cfg.Log, os.Stderr)))
	gin.SetMode(gin.ReleaseMode)

	slog.Info("Starting finalstream",
		"version", version.Full(),
		"http_port", cfg.Server.Port,
		"config_dir", configDir)

	deps := session.Deps{Config: cfg}

	// 2. Redis fan-out (optional)
	if cfg.Redis.Enabled() {
		rdb, err := newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("Error closing Redis client", "error", err)
			}
		}()
		deps.Publisher = rdb
		slog.Info("Redis fan-out enabled")
	}

	// 3. Run ledger (optional)
	var runs api.RunStore
	if cfg.Ledger.Enabled {
		store, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("Error closing run ledger", "error", err)
			}
		}()
		deps.Reporter = store
		runs = store
		slog.Info("Connected to run ledger database")

		retention := cleanup.NewService(cfg.Ledger, store)
		retention.Start(ctx)
		defer retention.Stop()
	}

	// 4. Generation backend (optional)
	var gen session.Generator
	if cfg.LLM.Enabled() {
		cm, err := llm.NewChatModel(ctx, cfg.LLM)
		if err != nil {
			return err
		}
		g, err := llm.NewGenerator(ctx, cm, cfg.LLM.SystemPrompt)
		if err != nil {
			return err
		}
		gen = g
	} else {
		slog.Warn("No generation backend configured, answer endpoints are disabled")
	}

	// 5. HTTP server
	connManager := session.NewConnectionManager(deps, gen)
	server := api.NewServer(cfg, deps, gen, connManager, runs)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Shutdown complete")
	return nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
