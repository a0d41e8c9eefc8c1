package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/penlab/workpen/internal/config"
	"github.com/penlab/workpen/internal/engine"
	"github.com/penlab/workpen/internal/sandbox"
	"github.com/penlab/workpen/internal/server"
	"github.com/penlab/workpen/internal/session"
	redisstore "github.com/penlab/workpen/internal/store/redis"
	"github.com/penlab/workpen/internal/tools"
	"github.com/penlab/workpen/web"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("WORKPEN_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("WORKPEN_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment. A missing OPENAI_API_KEY fails
	// here: the process refuses to serve any session without it.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The sandbox root is fixed for the process lifetime.
	root, err := sandbox.NewRoot(cfg.Agent.Workdir)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(root.Dir()); statErr != nil {
		return fmt.Errorf("workdir %s: %w", root.Dir(), statErr)
	}

	// Connect to Redis (render-event bus).
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// The fixed tool set, all confined to the sandbox root.
	registry := tools.NewRegistry(
		tools.NewReadFile(root),
		tools.NewWriteFile(root),
		tools.NewExecCommand(root),
	)

	provider := engine.NewOpenAI(cfg.Agent.APIKey, cfg.Agent.BaseURL, cfg.Agent.Model)
	runner := engine.NewRunner(provider, registry, cfg.Agent.TurnBudget)

	sessions := session.NewManager(runner, pubsub)
	defer sessions.Shutdown()

	// Prepare embedded chat page assets (strip "static/" prefix).
	webAssets, err := fs.Sub(web.Assets, "static")
	if err != nil {
		return fmt.Errorf("web assets: %w", err)
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, sessions, pubsub, webAssets)

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("workdir", root.Dir()).
			Str("model", cfg.Agent.Model).
			Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
