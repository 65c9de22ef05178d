package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/ingest"
)

// NewIngestCmd constructs the `arandu ingest` command, which runs the full
// pipeline for one PDF and prints the receipt.
func NewIngestCmd() *cobra.Command {
	var docID string
	var metadataJSON string
	var overrides []string
	var selectDoc bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Ingest one thesis PDF",
		Long: `Ingest one thesis PDF into the vector store and record a receipt.

Without --docid the document id is derived from the file content, so the
same PDF always maps to the same id and a repeated ingest replaces the
earlier records.

--metadata skips title-page extraction and uses the given JSON object
(inline or @file). --override key=value wins over extracted or supplied
metadata and may be repeated.

Examples:
  arandu ingest thesis.pdf
  arandu ingest thesis.pdf --docid mueller-2024 --select
  arandu ingest thesis.pdf --override work_type=master --override semester="SoSe 2024"
  arandu ingest thesis.pdf --metadata @meta.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := rt.log

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			md, err := readJSONObject("metadata", metadataJSON)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			ov, err := parseOverrides(overrides)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			p, err := buildPipeline(ctx, rt.cfg, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer p.close(log)

			rcpt, err := p.orch.Ingest(ctx, ingest.Request{
				Data:      data,
				Filename:  filepath.Base(args[0]),
				DocID:     docID,
				Metadata:  md,
				Overrides: ov,
				Select:    selectDoc,
			})
			if err != nil {
				return err
			}
			log.Info("ingest complete", slog.String("docid", rcpt.DocID))

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, rcpt)
			}
			fmt.Fprintf(out, "docid:      %s\n", rcpt.DocID)
			fmt.Fprintf(out, "work type:  %s\n", rcpt.WorkType)
			fmt.Fprintf(out, "parents:    %d -> %s\n", rcpt.Counts.Parents, rcpt.Collections.Parents)
			fmt.Fprintf(out, "children:   %d -> %s\n", rcpt.Counts.Children, rcpt.Collections.Chunks)
			fmt.Fprintf(out, "embedding:  %s (%s, dim %d)\n", rcpt.EmbeddingAlias, rcpt.EmbeddingModel, rcpt.EmbeddingDim)
			if rcpt.Averaged {
				fmt.Fprintln(out, "            parent vectors averaged from children")
			}
			if selectDoc {
				fmt.Fprintln(out, "selected as current thesis")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "docid", "", "Document id (default: derived from the file hash)")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "Metadata JSON object, inline or @file; skips extraction")
	cmd.Flags().StringArrayVar(&overrides, "override", nil, "Metadata override key=value (repeatable)")
	cmd.Flags().BoolVar(&selectDoc, "select", false, "Make the document the current thesis")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full receipt as JSON")

	return cmd
}

// NewPreviewCmd constructs the `arandu preview` command, which shows the
// metadata an ingest would extract without writing anything.
func NewPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <file.pdf>",
		Short: "Show the title-page metadata of a PDF without ingesting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("preview: %w", err)
			}
			p, err := buildPipeline(ctx, rt.cfg, rt.log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("preview: %w", err)
			}
			defer p.close(rt.log)

			res, err := p.orch.Preview(ctx, data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
