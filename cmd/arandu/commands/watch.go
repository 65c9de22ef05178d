package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/watch"
)

// NewWatchCmd constructs the `arandu watch` command, which ingests PDFs as
// they appear in an inbox directory.
func NewWatchCmd() *cobra.Command {
	var settle time.Duration
	var workers int
	var selectDoc bool
	var scan bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest PDFs dropped into a directory",
		Long: `Watch a directory and ingest every PDF created or rewritten in it.

A file is picked up once it has not changed for --settle. The document id is
derived from the file content, so dropping the same PDF twice replaces its
records. Stop with Ctrl-C.

Examples:
  arandu watch ./inbox
  arandu watch ./inbox --scan --select`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, rt.cfg, rt.log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer p.close(rt.log)

			out := cmd.OutOrStdout()
			w, err := watch.New(p.orch, watch.Config{
				Dir:          args[0],
				Settle:       settle,
				Workers:      workers,
				Select:       selectDoc,
				ScanExisting: scan,
				Log:          rt.log,
				OnResult: func(r watch.Result) {
					if r.Err != nil {
						fmt.Fprintf(out, "FAIL %s: %v\n", r.Path, r.Err)
						return
					}
					fmt.Fprintf(out, "OK   %s -> %s (%d parents)\n", r.Path, r.DocID, r.Receipt.Counts.Parents)
				},
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "Quiet period before a changed file is ingested")
	cmd.Flags().IntVar(&workers, "workers", 2, "Concurrent ingests")
	cmd.Flags().BoolVar(&selectDoc, "select", false, "Make each ingested thesis the current one")
	cmd.Flags().BoolVar(&scan, "scan", false, "Also ingest PDFs already in the directory")
	return cmd
}
