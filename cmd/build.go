package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/config"
	"github.com/JakeFAU/hybrid-search/internal/embedding"
	"github.com/JakeFAU/hybrid-search/internal/pipeline"
	"github.com/JakeFAU/hybrid-search/internal/storage"
	badgerstore "github.com/JakeFAU/hybrid-search/internal/storage/badger"
)

// newBuildCmd creates the 'build' subcommand: parse, dedup, index, embed.
func newBuildCmd() *cobra.Command {
	var skipEmbeddings bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Parse raw pages and write the index and embedding snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			raw, closeRaw, err := openRawStore(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closeRaw()
			_, err = runBuild(cmd.Context(), e.cfg, raw, !skipEmbeddings, e.logger)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipEmbeddings, "skip-embeddings", false, "write only the index snapshot")
	return cmd
}

func runBuild(ctx context.Context, cfg config.Config, raw storage.RawStore, embed bool, logger *zap.Logger) (pipeline.Result, error) {
	if err := os.MkdirAll(cfg.Storage.SnapshotDir, 0o755); err != nil {
		return pipeline.Result{}, fmt.Errorf("create snapshot dir: %w", err)
	}
	parsed, err := badgerstore.Open(badgerstore.Config{
		Dir:      cfg.Storage.ParsedDir,
		InMemory: cfg.Storage.Backend == "memory",
	}, logger)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer func() {
		if cerr := parsed.Close(); cerr != nil {
			logger.Warn("parsed store close failed", zap.Error(cerr))
		}
	}()

	detector, err := newDetector(cfg, logger)
	if err != nil {
		return pipeline.Result{}, err
	}
	bands, rows := detector.Layout()
	logger.Debug("dedup layout", zap.Int("bands", bands), zap.Int("rows", rows))

	pcfg := pipeline.Config{
		IndexPath: indexPath(cfg),
		PoolSize:  cfg.Embedding.PoolSize,
	}
	var embedder embedding.Embedder
	if embed {
		embedder, err = newEmbedder(cfg, logger)
		if err != nil {
			return pipeline.Result{}, err
		}
		pcfg.EmbeddingsPath = embeddingsPath(cfg)
	}

	b, err := pipeline.New(pcfg, raw, parsed, detector, embedder, logger)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer b.Release()

	res, err := b.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("build: %w", err)
	}
	return res, nil
}
