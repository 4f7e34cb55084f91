package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/hybrid-search/internal/ranking"
)

// newSearchCmd creates the 'search' subcommand: one query against the local
// snapshots, printed as JSON.
func newSearchCmd() *cobra.Command {
	var (
		topK    int
		lexical bool
		site    string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one query against the snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			engine, err := loadEngine(e.cfg, e.logger, !lexical)
			if err != nil {
				return err
			}
			resp, err := engine.Search(cmd.Context(), ranking.Request{
				Query:       strings.Join(args, " "),
				TopK:        topK,
				UseSemantic: !lexical,
				Site:        site,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write results: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of hits (defaults to ranking.default_top_k)")
	cmd.Flags().BoolVar(&lexical, "lexical", false, "rank with BM25 only")
	cmd.Flags().StringVar(&site, "site", "", "only return URLs containing this substring")
	return cmd
}
