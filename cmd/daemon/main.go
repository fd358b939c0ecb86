// Command daemon is the AingDesk-compatible backend daemon: object store,
// supplier registry, vector index, RAG pipeline, chat session store, chat
// engine, and model manager, exposed over HTTP. Wiring order follows the
// teacher's main.go: construct stores, then runtimes, then the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aingdesk/daemon/pkg/chatengine"
	"github.com/aingdesk/daemon/pkg/chatstore"
	"github.com/aingdesk/daemon/pkg/config"
	"github.com/aingdesk/daemon/pkg/logging"
	"github.com/aingdesk/daemon/pkg/modelmanager"
	"github.com/aingdesk/daemon/pkg/objectstore"
	"github.com/aingdesk/daemon/pkg/provider"
	"github.com/aingdesk/daemon/pkg/rag"
	"github.com/aingdesk/daemon/pkg/server"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger, closeLog, err := logging.New(cfg.DataRoot, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	objects, err := objectstore.New(cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("objectstore: %w", err)
	}

	supplyRegistry, err := suppliers.New(objects)
	if err != nil {
		return fmt.Errorf("suppliers: %w", err)
	}

	ragManager := rag.NewManager(objects, embedderFactory(supplyRegistry), logger)

	chatStore := chatstore.New(objects)
	engine := chatengine.New(chatStore, supplyRegistry, ragManager, nil, logger)

	modelManager, err := modelmanager.New(objects, modelmanager.NewLocalRuntime(supplyRegistry), supplyRegistry, logger)
	if err != nil {
		return fmt.Errorf("modelmanager: %w", err)
	}

	httpServer := server.New(chatStore, supplyRegistry, ragManager, engine, modelManager, server.WithLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go ragManager.Run(ctx)

	logger.Info("starting daemon", "bind_addr", cfg.BindAddr, "data_root", cfg.DataRoot)
	return httpServer.Start(ctx, cfg.BindAddr)
}

// embedderFactory resolves a knowledge base's configured supplier/model into
// an Embedder, indirecting through the supplier registry so pkg/rag never
// imports pkg/suppliers directly.
func embedderFactory(registry *suppliers.Registry) rag.EmbedderFactory {
	return func(kb *rag.KnowledgeBase) (*rag.Embedder, error) {
		sup, err := registry.Get(kb.SupplierName)
		if err != nil {
			return nil, err
		}
		prov, err := provider.New(sup)
		if err != nil {
			return nil, err
		}
		return rag.NewEmbedder(prov, kb.EmbedModel), nil
	}
}
