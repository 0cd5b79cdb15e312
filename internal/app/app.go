package app

import (
	"context"
	"fmt"

	"imggen/internal/ai"
	"imggen/internal/config"
	"imggen/internal/dedup"
	"imggen/internal/handler"
	"imggen/internal/imggen"
	"imggen/internal/server"
)

type App struct {
	server   *server.Server
	registry *dedup.Registry
	client   ai.Client
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Dependencies
	stores, err := initStores(cfg)
	if err != nil {
		return nil, err
	}
	client, err := initAIClient(cfg)
	if err != nil {
		return nil, err
	}
	registry := dedup.NewRegistry(dedup.Config{})

	svc, err := imggen.New(imggen.Config{
		Docs:     stores.docs,
		Files:    stores.files,
		Client:   client,
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image service: %w", err)
	}

	imageHandler := handler.NewImageHandler(svc)
	vibesHandler := handler.NewVibesHandler(client)
	watchHandler := handler.NewWatchHandler(svc)
	liveHandler := handler.NewLiveHandler(svc)

	// Routing & Server
	mux := server.NewMux(imageHandler, vibesHandler, watchHandler, liveHandler)
	srv := server.New(cfg.Port, mux)

	return &App{
		server:   srv,
		registry: registry,
		client:   client,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.registry.Close()
	_ = a.client.Close()
	return a.server.Shutdown(ctx)
}
