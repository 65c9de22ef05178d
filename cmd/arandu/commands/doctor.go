package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/embedder"
	"github.com/mgruene/ARANDU-PUB/internal/server"
)

// errDoctor is returned when at least one check failed.
var errDoctor = errors.New("doctor: one or more checks failed")

// NewDoctorCmd constructs the `arandu doctor` command, which probes every
// configured backend and reports what would break an ingest.
func NewDoctorCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check embedding aliases, the metadata LLM and storage backends",
		Long: `Probe every embedding alias of the registry (the returned vector size must
match the registered dimension), the metadata LLM, the vector store and the
lock backend.

Exits non-zero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			cfg, log := rt.cfg, rt.log
			out := cmd.OutOrStdout()

			p, err := buildPipeline(ctx, cfg, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("doctor: %w", err)
			}
			defer p.close(log)

			failed := false
			for _, alias := range embedder.WarnChatModels(cfg.Models, log) {
				fmt.Fprintf(out, "WARN embedding %-12s model looks like a chat model\n", alias)
			}
			for _, r := range embedder.Probe(ctx, p.embeds, registryAliases(cfg)) {
				if !r.OK() {
					failed = true
					fmt.Fprintf(out, "FAIL embedding %-12s %s: %v\n", r.Alias, r.Model, r.Err)
					continue
				}
				fmt.Fprintf(out, "OK   embedding %-12s %s dim %d\n", r.Alias, r.Model, r.Dim)
			}

			if p.llm == nil {
				fmt.Fprintln(out, "SKIP llm       no metadata LLM configured, heuristics only")
			} else if _, err := p.llm.Generate(ctx, "Antworte nur mit OK."); err != nil {
				failed = true
				fmt.Fprintf(out, "FAIL llm       %-12s %v\n", p.llm.Alias(), err)
			} else {
				fmt.Fprintf(out, "OK   llm       %s\n", p.llm.Alias())
			}

			failed = probe(ctx, out, "vectors", p.vectors) || failed
			if pg, ok := p.locker.(server.Pinger); ok {
				failed = probe(ctx, out, "lock", pg) || failed
			}

			if failed {
				return errDoctor
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall time limit for all checks")
	return cmd
}

// probe pings pg and prints the outcome. It reports whether the check failed.
func probe(ctx context.Context, out io.Writer, kind string, pg server.Pinger) bool {
	if err := pg.Ping(ctx); err != nil {
		fmt.Fprintf(out, "FAIL %-8s %-12s %v\n", kind, pg.Name(), err)
		return true
	}
	fmt.Fprintf(out, "OK   %-8s %s\n", kind, pg.Name())
	return false
}

// registryAliases returns every embedding alias of the registry.
func registryAliases(cfg *config.Config) []string {
	if cfg.Models == nil {
		return nil
	}
	out := make([]string, 0, len(cfg.Models.Embeddings))
	for _, e := range cfg.Models.Embeddings {
		out = append(out, e.Alias)
	}
	return out
}
