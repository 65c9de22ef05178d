package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/store"
)

// openState opens the configured state store.
func openState() (store.Store, error) {
	st, err := store.Open(rt.cfg, rt.log)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	return st, nil
}

// NewListCmd constructs the `arandu list` command.
func NewListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested theses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openState()
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			defer st.Close()

			items, err := st.ListIndex(cmd.Context())
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if asJSON {
				if items == nil {
					items = []store.IndexEntry{}
				}
				return printJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no ingests recorded")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOCID\tWORK TYPE\tSTUDENT\tTITLE\tPARENTS\tCHILDREN\tINGESTED")
			for _, e := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					e.DocID, e.WorkType, e.StudentName, e.ThesisTitle,
					e.Counts.Parents, e.Counts.Children, e.IngestAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the index as JSON")
	return cmd
}

// NewShowCmd constructs the `arandu show` command, which prints a receipt.
func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <docid>",
		Short: "Print the receipt of an ingested thesis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState()
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			defer st.Close()

			rcpt, err := st.ReadReceipt(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), rcpt)
		},
	}
}

// NewSelectCmd constructs the `arandu select` command.
func NewSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <docid>",
		Short: "Make an ingested thesis the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openState()
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			defer st.Close()

			sel, err := st.SetCurrent(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current thesis: %s (%s)\n", sel.DocID, sel.File)
			return nil
		},
	}
}

// NewCurrentCmd constructs the `arandu current` command.
func NewCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the current thesis selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openState()
			if err != nil {
				return fmt.Errorf("current: %w", err)
			}
			defer st.Close()

			sel, err := st.Current(cmd.Context())
			if err != nil {
				return fmt.Errorf("current: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), sel)
		},
	}
}
