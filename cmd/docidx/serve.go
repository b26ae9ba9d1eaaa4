package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/config"
	"github.com/fyrsmithlabs/docidx/internal/docmgr"
	"github.com/fyrsmithlabs/docidx/internal/docstore"
	"github.com/fyrsmithlabs/docidx/internal/embeddings"
	"github.com/fyrsmithlabs/docidx/internal/index"
	"github.com/fyrsmithlabs/docidx/internal/logging"
	"github.com/fyrsmithlabs/docidx/internal/objstore"
	"github.com/fyrsmithlabs/docidx/internal/pipeline"
	"github.com/fyrsmithlabs/docidx/internal/registry"
	"github.com/fyrsmithlabs/docidx/internal/secrets"
	"github.com/fyrsmithlabs/docidx/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docidx HTTP server",
	Long: `Start the HTTP server with the configured backends.

Examples:
  # Run with defaults (Redis, Qdrant, MinIO on localhost)
  docidx serve

  # Run with a config file
  docidx serve --config /etc/docidx/config.yaml

  # Run fully in-process for local development
  DOCIDX_QDRANT_PROVIDER=memory \
  DOCIDX_STORAGE_PROVIDER=memory \
  DOCIDX_EMBEDDINGS_PROVIDER=fake docidx serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	resolveSecrets(cmd.Context(), cfg)

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logging.Sync(logger) //nolint:errcheck

	ctx := cmd.Context()

	store, err := docstore.NewStore(ctx, docstore.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password.Value(),
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	defer store.Close()

	adapter, err := newAdapter(cfg)
	if err != nil {
		return fmt.Errorf("search index: %w", err)
	}

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Config{
		ChunkSize:    cfg.Pipeline.ChunkSize,
		ChunkOverlap: cfg.Pipeline.ChunkOverlap,
	}, embedder, logger.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	lifecycle := registry.NewLifecycle(store, adapter, logger.Named("lifecycle"))
	customers := registry.NewCustomers(store, lifecycle, logger.Named("customers"))
	manager := docmgr.New(store, adapter, storage, embedder, pipe, lifecycle, logger.Named("docmgr"))

	srv, err := server.New(manager, customers, logger.Named("http"), &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveSecrets fills credentials the config left empty from the
// conventional unprefixed environment variables (OPENAI_API_KEY,
// MINIO_SECRET_KEY, QDRANT_API_KEY).
func resolveSecrets(ctx context.Context, cfg *config.Config) {
	env := secrets.NewEnvStore("")
	if !cfg.Embeddings.APIKey.IsSet() {
		if v, err := env.Get(ctx, "openai_api_key"); err == nil {
			cfg.Embeddings.APIKey = config.Secret(v)
		}
	}
	if !cfg.Storage.SecretKey.IsSet() {
		if v, err := env.Get(ctx, "minio_secret_key"); err == nil {
			cfg.Storage.SecretKey = config.Secret(v)
		}
	}
	if !cfg.Qdrant.APIKey.IsSet() {
		if v, err := env.Get(ctx, "qdrant_api_key"); err == nil {
			cfg.Qdrant.APIKey = config.Secret(v)
		}
	}
}

func newAdapter(cfg *config.Config) (index.Adapter, error) {
	switch cfg.Qdrant.Provider {
	case "memory":
		return index.NewMemoryAdapter(), nil
	default:
		return index.NewQdrantAdapter(index.QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			ConnectTimeout: cfg.Qdrant.ConnectTimeout.Duration(),
		})
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (objstore.Storage, error) {
	switch cfg.Storage.Provider {
	case "memory":
		return objstore.NewMemStorage(), nil
	default:
		return objstore.NewMinIOStorage(ctx, objstore.MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey.Value(),
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
	}
}

func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.Embeddings.Provider {
	case "fake":
		return embeddings.NewFakeEmbedder(cfg.Embeddings.Dimensions), nil
	default:
		return embeddings.NewService(embeddings.Config{
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
			APIKey:  cfg.Embeddings.APIKey.Value(),
		})
	}
}
