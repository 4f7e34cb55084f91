package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand: crawl from crawler.seeds, then build.
// With storage.backend=memory the raw pages only live for this process.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Crawl and build in one process",
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

			visited, err := runCrawl(cmd.Context(), e.cfg, raw, e.logger)
			if err != nil {
				return err
			}
			res, err := runBuild(cmd.Context(), e.cfg, raw, true, e.logger)
			if err != nil {
				return err
			}
			e.logger.Info("pipeline finished",
				zap.Int("visited", len(visited)),
				zap.Int("indexed", res.Indexed),
				zap.Int("embedded", res.Embedded),
				zap.String("index", res.IndexPath),
				zap.String("embeddings", res.VectorPath))
			return nil
		},
	}
}
