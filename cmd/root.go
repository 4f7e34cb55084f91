// Package cmd defines the CLI commands of the hybrid-search executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/config"
	"github.com/JakeFAU/hybrid-search/internal/logging"
)

var (
	cfgFile string
	envFile string
)

type envKey struct{}

// env carries the loaded configuration and logger to subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not initialized")
	}
	return e, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybrid-search",
		Short: "Crawl, index and search a small web corpus.",
		Long: `hybrid-search crawls pages politely, builds a positional inverted
index plus document embeddings, and serves BM25, semantic and hybrid ranked
search over HTTP.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := resolveEnv(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	if bootstrap, err := logging.New(logging.Config{Development: true}); err == nil {
		zap.ReplaceGlobals(bootstrap)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		zap.L().Fatal("Command execution failed", zap.Error(err))
	}
}
