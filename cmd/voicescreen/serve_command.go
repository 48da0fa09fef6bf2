package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognivox/voicescreen/internal/config"
	"github.com/cognivox/voicescreen/internal/engine"
	"github.com/cognivox/voicescreen/internal/screen"
	"github.com/cognivox/voicescreen/internal/server"
	"github.com/cognivox/voicescreen/internal/store"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the screening HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogLevel)

	logger.Info("starting voicescreen",
		"version", version,
		"engine_config", cfg.Engine, // configured value, may be "auto"
		"listen_addr", cfg.ListenAddr,
		"model_dir", cfg.ModelDir,
	)

	// Bind the port before any model work so orchestrators see the
	// service come up immediately; requests get 503 until a model is
	// published.
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}
	defer lis.Close()
	logger.Info("listener bound, port ready", "addr", lis.Addr().String())

	screener := screen.New()
	defer screener.Close()

	var history *store.Store
	if cfg.HistoryPath != "" {
		history, err = store.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer history.Close()
	}

	// loadModel is shared by startup and the lazy per-request path.
	var loadMu sync.Mutex
	loadModel := func() error {
		loadMu.Lock()
		defer loadMu.Unlock()
		if screener.Ready() {
			return nil
		}
		eng, name, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		screener.Publish(eng)
		logger.Info("model published", "engine", name)
		return nil
	}

	srv := server.New(server.Options{
		Log:            logger,
		Screener:       screener,
		History:        history,
		LoadModel:      loadModel,
		Version:        version,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Info("http server started (503 until model loads)")

	if err := loadModel(); err != nil {
		logger.Warn("model not loaded at startup, will retry on first request", "error", err)
	} else {
		logger.Info("ready to serve requests", "engine", screener.EngineName())
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested, stopping http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful stop timed out, forcing stop", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}
}

// buildEngine resolves the configured backend. "auto" prefers the ONNX
// runtime when compiled in and configured, then a local TCN checkpoint;
// the stub is only reachable explicitly or in dev mode.
func buildEngine(cfg config.Config, logger *slog.Logger) (engine.Engine, string, error) {
	resolved := cfg.Engine
	isAuto := resolved == config.EngineAuto

	if isAuto {
		switch {
		case engine.ONNXAvailable() && cfg.ONNXModelPath != "":
			resolved = config.EngineONNX
		default:
			resolved = config.EngineTCN
		}
	}

	switch resolved {
	case config.EngineONNX:
		if !engine.ONNXAvailable() {
			return nil, "", errors.New("engine \"onnx\" requested but backend not compiled in (build with -tags onnx)")
		}
		eng, err := engine.NewONNXBackend(cfg.ONNXModelPath)
		if err != nil {
			return nil, "", fmt.Errorf("create onnx engine: %w", err)
		}
		return eng, resolved, nil

	case config.EngineTCN:
		path, cleanup, err := engine.LocateCheckpoint(cfg.ModelPath, cfg.ModelURL, cfg.ModelDir, cfg.ModelAuthToken)
		if err != nil {
			if isAuto && os.Getenv("VOICESCREEN_DEV_MODE") == "1" {
				logger.Warn("no checkpoint found, falling back to stub engine (VOICESCREEN_DEV_MODE=1)",
					"error", err,
					"hint", "unset VOICESCREEN_DEV_MODE for production behavior")
				return engine.NewStubEngine(), config.EngineStub, nil
			}
			return nil, "", err
		}
		if cleanup != nil {
			defer cleanup()
		}
		eng, err := engine.NewTCNEngineFromFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("load checkpoint %s: %w", path, err)
		}
		logger.Info("checkpoint loaded", "path", path)
		return eng, resolved, nil

	case config.EngineStub:
		logger.Warn("using stub engine — results are deterministic and NOT based on audio content")
		return engine.NewStubEngine(), resolved, nil
	}
	return nil, "", fmt.Errorf("unknown engine %q", resolved)
}
