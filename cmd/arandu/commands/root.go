// Package commands defines all Cobra CLI commands for the arandu binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/audit"
	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/logging"
	"github.com/mgruene/ARANDU-PUB/internal/tracing"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// configPath holds the --config flag value for YAML config file override.
var configPath string

// runtime is the state shared by every command after PersistentPreRunE.
type runtime struct {
	cfg        *config.Config
	log        *slog.Logger
	configPath string
	closeLog   func() error
	flush      func()
}

var rt runtime

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arandu",
		Short: "Ingest thesis PDFs into a searchable parent/child vector index",
		Long: `arandu turns thesis PDFs into a two-level chunk hierarchy with embeddings.

Each ingest extracts the text, resolves the title-page metadata (heuristics
first, an LLM for whatever is left), splits the text into overlapping
children, groups them into parents, embeds the parents with the first
embedding alias that answers, and records a receipt.

Configuration is read from --config, ARANDU_CONFIG, ~/.arandu/config.yaml or
./arandu.yaml; environment variables always win. The model registry lives in
models.json (ARANDU_MODELS_FILE).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			boot, _, err := logging.New(logging.Options{})
			if err != nil {
				return err
			}

			cfg, path, err := config.Load(configPath, boot)
			if err != nil {
				return err
			}
			log, closeLog, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				File:   cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			rt = runtime{cfg: cfg, log: log, configPath: path, closeLog: closeLog}

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), path)

			rt.flush = tracing.Enable(cfg.Tracing, log)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.flush != nil {
				rt.flush()
			}
			if rt.closeLog != nil {
				return rt.closeLog()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.arandu/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewPreviewCmd(),
		NewListCmd(),
		NewShowCmd(),
		NewSelectCmd(),
		NewCurrentCmd(),
		NewSearchCmd(),
		NewWatchCmd(),
		NewServeCmd(),
		NewDoctorCmd(),
		NewVersionCmd(),
	)

	return root
}
