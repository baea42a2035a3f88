package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/genai"

	"github.com/room4-2/voicedesk/config"
	"github.com/room4-2/voicedesk/functions"
	"github.com/room4-2/voicedesk/gemini"
	"github.com/room4-2/voicedesk/server"
	"github.com/room4-2/voicedesk/session"
)

const cleanupInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	executor := functions.FromConfig(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dial, err := gemini.NewDialer(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Error("gemini client unavailable, sessions will fail", "err", err)
		dialErr := err
		dial = func(context.Context, string, *genai.LiveConnectConfig) (gemini.LiveConn, error) {
			return nil, dialErr
		}
	}

	instructions := func() string {
		now := time.Now().In(cfg.Location())
		return session.SystemInstruction(session.PromptInfo{
			Business: cfg.BusinessName,
			Location: cfg.BusinessLocation,
			Address:  cfg.BusinessAddress,
			Timezone: now.Format("MST"),
			Now:      now,
		})
	}
	setup := func() gemini.Setup {
		return gemini.Setup{
			Model:             cfg.Model,
			Voice:             cfg.Voice,
			SystemInstruction: instructions(),
			Tools:             functions.Tools(),
			Greeting:          cfg.Greeting,
			GreetingDelay:     cfg.GreetingDelay,
		}
	}

	manager := session.NewManager(dial, setup, executor, session.ManagerOptions{
		MaxSessions:    cfg.MaxSessions,
		SessionTimeout: cfg.SessionTimeout,
		Redis:          session.ConnectRedis(ctx, cfg.RedisURL, cfg.RedisPassword, logger),
		Logger:         logger,
	})
	go manager.StartCleanupRoutine(ctx, cleanupInterval)

	srv := server.New(cfg, server.Options{
		Sessions:     manager,
		Tools:        executor,
		Instructions: instructions,
		Logger:       logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		if err := executor.Wait(shutdownCtx); err != nil {
			logger.Warn("pending notifications abandoned", "err", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}

	<-stopped
	logger.Info("server stopped")
}
