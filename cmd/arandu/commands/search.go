package commands

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/ingest"
)

// NewSearchCmd constructs the `arandu search` command, which queries the
// parents of one thesis.
func NewSearchCmd() *cobra.Command {
	var docID string
	var k int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Search the parent chunks of a thesis",
		Long: `Embed a question and return the nearest parent chunks of one thesis.

Without --docid the current thesis is searched.

Examples:
  arandu search "Welche Forschungsfrage wird untersucht?"
  arandu search --docid mueller-2024 -k 3 "Methodik"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := buildPipeline(ctx, rt.cfg, rt.log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer p.close(rt.log)

			res, err := p.orch.Search(ctx, ingest.SearchRequest{
				Query: strings.Join(args, " "),
				DocID: docID,
				K:     k,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "%s in %s (%s), %d hits\n", res.DocID, res.Collection, res.Alias, len(res.Hits))
			for i, h := range res.Hits {
				fmt.Fprintf(out, "\n[%d] %s  score %.3f\n%s\n", i+1, h.ID, h.Score, preview(h.Document, 400))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "docid", "", "Thesis to search (default: current thesis)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of hits (default: registry top_k_default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print hits as JSON")
	return cmd
}

// preview shortens s to at most n runes.
func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
