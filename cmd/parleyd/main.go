// Command parleyd runs the multi-agent chat server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/parleyhq/parley/catalog"
	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/model"
	anthropicmodel "github.com/parleyhq/parley/model/anthropic"
	openaimodel "github.com/parleyhq/parley/model/openai"
	"github.com/parleyhq/parley/server"
	"github.com/parleyhq/parley/storage"
	"github.com/parleyhq/parley/storage/sqlite"
	"github.com/parleyhq/parley/tool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "parleyd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedPath != "" {
		if err := catalog.SeedFromFile(ctx, store, cfg.SeedPath); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("seeded catalog", "path", cfg.SeedPath)
	}

	cat := catalog.New(store, logger)
	if err := cat.Load(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	m, err := buildModel(cfg)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry(store, logger)
	registry.RegisterInstance(tool.NewAnswerTool(m))
	registry.RegisterInstance(tool.NewAnalyzeTool(m))
	registry.RegisterInstance(tool.NewCodeWriterTool(m))
	registry.RegisterInstance(tool.NewCommandLineTool())
	registry.RegisterInstance(tool.NewWebContentFetcherTool())
	registry.RegisterInstance(tool.NewTavilySearchTool(cfg.TavilyAPIKey))

	manager := chat.NewManager(store, memory.NewInMemoryStore(logger), cat, registry, m,
		chat.WithLogger(logger),
		chat.WithHistoryLimit(cfg.HistoryLimit),
	)

	srv := server.New(cfg.Addr, manager,
		server.WithServerLogger(logger),
		server.WithMetrics(server.NewMetrics()),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func openStore(cfg *config.Config, logger logging.Logger) (core.Store, func(), error) {
	if cfg.DBPath == "" {
		logger.Info("using in-memory store")
		return storage.NewInMemoryStore(), func() {}, nil
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("using sqlite store", "path", cfg.DBPath)
	return db, func() { _ = db.Close() }, nil
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.ModelProvider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.ModelName != "" {
				o.Model = anthropic.Model(cfg.ModelName)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}
