package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/voicelink/external/config"
	llmimpl "github.com/foxseedlab/voicelink/external/llm"
	repositoryimpl "github.com/foxseedlab/voicelink/external/repository"
	telephonyimpl "github.com/foxseedlab/voicelink/external/telephony"
	transcriberimpl "github.com/foxseedlab/voicelink/external/transcriber"
	ttsimpl "github.com/foxseedlab/voicelink/external/tts"
	webhookimpl "github.com/foxseedlab/voicelink/external/webhook"
	"github.com/foxseedlab/voicelink/internal/config"
	"github.com/foxseedlab/voicelink/internal/pipeline"
	"github.com/foxseedlab/voicelink/internal/session"
	"github.com/foxseedlab/voicelink/internal/telephony"
	"github.com/foxseedlab/voicelink/internal/transcriber"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "llm_provider", cfg.LLMProvider)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching media stream server")
	os.Exit(runServer(injector))
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	llmimpl.RegisterDI(injector)
	ttsimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	telephonyimpl.RegisterDI(injector)
	pipeline.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

// runServer blocks until a signal, a server failure or a policy violation and
// returns the process exit code.
func runServer(injector do.Injector) int {
	server, err := do.Invoke[telephony.Server](injector)
	if err != nil {
		slog.Error("failed to resolve media stream server", "error", err)
		return 1
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		return 1
	}
	server.RegisterCallHandler(manager)
	server.RegisterCallInspector(manager)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			slog.Error("media stream server failed", "error", err)
			code = 1
		}
	case err := <-manager.Fatal():
		slog.Error("terminating after policy violation", "error", err)
		code = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("media stream server shutdown failed", "error", err)
	}
	if err := manager.Shutdown(ctx); err != nil {
		slog.Error("call sessions did not drain", "error", err)
	}
	if stt, err := do.Invoke[transcriber.Transcriber](injector); err == nil {
		if err := stt.Close(); err != nil {
			slog.Warn("speech client close failed", "error", err)
		}
	}
	return code
}
