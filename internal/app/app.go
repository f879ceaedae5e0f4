// Package app wires configuration into the storage, metadata and model
// components shared by the API server and the ingest CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/engelke/fashion-hack-2024/internal/config"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/repository"
	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/engelke/fashion-hack-2024/internal/storage"
)

// App holds the initialized components.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Storage storage.BlobStore
	Store   repository.AttributeStore
	Qdrant  *repository.QdrantRepository

	Ingest *service.IngestService
	Search *service.SearchService
	Outfit *service.OutfitService

	// AnalysisEnabled is false when no VLM API key is configured; uploads are then only stored.
	AnalysisEnabled bool

	closers []func() error
}

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// New builds every component from cfg. Callers must Close the result.
// Parameters:
//   - ctx: context for startup calls (bucket and collection checks).
//   - cfg: validated application configuration.
//   - log: application logger; nil uses the default logger.
// Returns:
//   - *App: wired components.
//   - error: non-nil if any component fails to start; started ones are closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	a := &App{Config: cfg, Logger: log}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	blobs, err := storage.NewStorage(ctx, &storage.Config{
		S3Config: storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		},
		LocalPath: cfg.Storage.LocalPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if be, ok := blobs.(bucketEnsurer); ok {
		if err := be.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}
	a.Storage = blobs

	store, err := OpenStore(&cfg.Database, a.Logger)
	if err != nil {
		return err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	ingestOpts := []service.IngestOption{}
	retry := service.RetryPolicy{MaxAttempts: cfg.Ingest.MaxRetries, BaseDelay: cfg.Ingest.RetryBackoffBase()}

	var (
		embedder service.Embedder
		index    service.VectorIndex
	)
	if cfg.Qdrant.Enabled {
		emb := service.NewEmbeddingService(&service.EmbeddingConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
		})
		qdrant, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: emb.Dimensions(),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Qdrant repository: %w", err)
		}
		a.Qdrant = qdrant
		a.closers = append(a.closers, qdrant.Close)
		if err := qdrant.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}

		embedder, index = emb, qdrant
		ingestOpts = append(ingestOpts, service.WithIndexer(service.NewAttributeIndexer(emb, qdrant)))
		a.Logger.WithFields(logger.Fields{
			"collection": cfg.Qdrant.Collection,
			"embedding":  emb.GetModel(),
		}).Info("Search index enabled")
	}

	var text service.TextModel
	if cfg.VLM.APIKey != "" {
		vlm := service.NewVLMService(&service.VLMConfig{
			Provider:  cfg.VLM.Provider,
			Model:     cfg.VLM.Model,
			APIKey:    cfg.VLM.APIKey,
			BaseURL:   cfg.VLM.BaseURL,
			Timeout:   cfg.VLM.Timeout,
			MaxTokens: cfg.VLM.MaxTokens,
		})
		text = vlm
		ingestOpts = append(ingestOpts, service.WithModelClient(vlm))
		a.AnalysisEnabled = true
	} else {
		a.Logger.Warn("vlm.api_key is empty; images will be stored without analysis")
	}

	a.Ingest = service.NewIngestService(a.Storage, a.Store, a.Logger, &service.IngestConfig{
		MaxRetries:       cfg.Ingest.MaxRetries,
		RetryBackoffBase: cfg.Ingest.RetryBackoffBase(),
		Workers:          cfg.Ingest.Workers,
	}, ingestOpts...)
	a.Search = service.NewSearchService(a.Store, a.Storage, index, embedder, a.Logger, &service.SearchConfig{
		SignedURLTTL: cfg.Storage.SignedURLTTL,
	})
	a.Outfit = service.NewOutfitService(text, cfg.VLM.Model, retry)
	return nil
}

// OpenStore opens the attribute store selected by cfg.Driver.
func OpenStore(cfg *config.DatabaseConfig, log *logger.Logger) (repository.AttributeStore, error) {
	if cfg.Driver == "badger" {
		store, err := repository.OpenBadgerAttributeStore(cfg.Path, false, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil
	}

	db, err := repository.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return repository.NewGormAttributeStore(db), nil
}

// Close releases the store and index connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
