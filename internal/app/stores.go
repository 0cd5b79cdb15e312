package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"imggen/internal/ai"
	"imggen/internal/config"
	"imggen/internal/docstore"
	"imggen/internal/filestore"
)

type appStores struct {
	docs  docstore.Store
	files filestore.Store
}

func initStores(cfg *config.Config) (*appStores, error) {
	files, err := chooseFileStore(cfg)
	if err != nil {
		return nil, err
	}

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		docs, err := docstore.NewPostgresStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		log.Printf("document store: postgres")
		if files == nil {
			pgFiles, err := filestore.NewPostgresStoreDSN(dsn)
			if err != nil {
				return nil, fmt.Errorf("failed to open file store: %w", err)
			}
			log.Printf("file store: postgres")
			files = pgFiles
		}
		return &appStores{docs: docs, files: files}, nil
	}

	if files == nil {
		files = filestore.NewMemoryStore()
		log.Printf("file store: in-memory")
	}
	log.Printf("document store: in-memory")
	return &appStores{docs: docstore.NewMemoryStore(), files: files}, nil
}

// chooseFileStore returns the S3 store when its config is complete,
// nil otherwise so the caller can fall back.
func chooseFileStore(cfg *config.Config) (filestore.Store, error) {
	if !cfg.Files.CanUseS3() {
		if cfg.Files.Enabled {
			log.Printf("file store: s3 config incomplete, falling back")
		}
		return nil, nil
	}
	s3Store, err := filestore.NewS3Store(filestore.S3Config{
		Endpoint:  cfg.Files.Endpoint,
		Region:    cfg.Files.Region,
		AccessKey: cfg.Files.AccessKey,
		SecretKey: cfg.Files.SecretKey,
		Bucket:    cfg.Files.Bucket,
		UseSSL:    cfg.Files.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 file store: %w", err)
	}
	log.Printf("file store: s3 bucket=%s endpoint=%s", cfg.Files.Bucket, cfg.Files.Endpoint)
	return s3Store, nil
}

func initAIClient(cfg *config.Config) (ai.Client, error) {
	if cfg.AI.Fake || strings.TrimSpace(cfg.AI.APIKey) == "" {
		log.Printf("ai client: fake (no GEMINI_API_KEY)")
		return ai.NewFakeClient(), nil
	}
	client, err := ai.NewGeminiClient(context.Background(), ai.GeminiConfig{
		APIKey:     cfg.AI.APIKey,
		ImageModel: cfg.AI.ImageModel,
		TextModel:  cfg.AI.TextModel,
		RPS:        cfg.AI.RPS,
		Burst:      cfg.AI.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ai client: %w", err)
	}
	log.Printf("ai client: %s", client.Name())
	return client, nil
}
