package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/api"
	"github.com/JakeFAU/hybrid-search/internal/config"
	"github.com/JakeFAU/hybrid-search/internal/searchcache"
	"github.com/JakeFAU/hybrid-search/internal/telemetry"
)

// newServeCmd creates the 'serve' subcommand. Both snapshots are loaded
// before the listener starts; a missing or corrupt snapshot fails the command.
func newServeCmd() *cobra.Command {
	var lexicalOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), e.cfg, !lexicalOnly, e.logger)
		},
	}
	cmd.Flags().BoolVar(&lexicalOnly, "lexical-only", false, "skip loading embeddings and rank with BM25 only")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, semantic bool, logger *zap.Logger) error {
	tp, err := telemetry.InitTracerProvider(ctx, "hybrid-search")
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	engine, err := loadEngine(cfg, logger, semantic)
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithRequestTimeout(time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second),
	}
	if cfg.Redis.Addr != "" {
		backend, err := searchcache.NewRedis(ctx, searchcache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer func() {
			if cerr := backend.Close(); cerr != nil {
				logger.Warn("redis close failed", zap.Error(cerr))
			}
		}()
		opts = append(opts, api.WithCache(searchcache.New(backend, cfg.CacheTTL(), logger,
			searchcache.WithComputeTimeout(time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second))))
		logger.Info("search result cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	server := api.NewServer(engine, logger, opts...)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port), zap.Bool("semantic", engine.SemanticEnabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
