package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/server"
	"github.com/mgruene/ARANDU-PUB/internal/version"
)

// NewServeCmd constructs the `arandu serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the arandu HTTP API",
		Long: `Start the arandu HTTP API.

Routes:
  POST /api/v1/ingest          multipart upload: file, docid, metadata, overrides, select
  POST /api/v1/preview         multipart upload: file
  POST /api/v1/search          {"query", "docid", "k"}
  GET  /api/v1/ingests         index of ingested theses
  GET  /api/v1/ingests/{docid} receipt
  GET  /api/v1/current         current thesis
  PUT  /api/v1/current         {"docid"}
  GET  /healthz /readyz /metrics

Examples:
  arandu serve
  arandu serve --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, log := rt.cfg, rt.log
			log.Info("serve starting", slog.String("version", version.Version))

			p, err := buildPipeline(ctx, cfg, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer p.close(log)

			sc := cfg.Server
			if cmd.Flags().Changed("host") {
				sc.Host = host
			}
			if cmd.Flags().Changed("port") {
				sc.Port = port
			}

			srv, err := server.New(p.orch, p.state, &server.Config{
				Host:           sc.Host,
				Port:           sc.Port,
				Logger:         log,
				Pingers:        buildPingers(cfg, p),
				RateLimit:      sc.RateLimitRPS,
				RateBurst:      sc.RateLimitBurst,
				MaxUploadBytes: sc.MaxUploadMB << 20,
				AllowedOrigins: sc.AllowedOrigins,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// buildPingers lists the readiness probes: the vector store, the state
// store, the Ollama endpoint when any alias uses it and the Redis lock.
func buildPingers(cfg *config.Config, p *pipeline) []server.Pinger {
	pingers := []server.Pinger{
		p.vectors,
		server.PingFunc{Label: "state", Fn: func(ctx context.Context) error {
			_, err := p.state.ListIndex(ctx)
			return err
		}},
	}
	if usesOllama(cfg) {
		pingers = append(pingers, server.NewHTTPPinger("ollama", cfg.Ollama.BaseURL, "/api/tags", nil))
	}
	if pg, ok := p.locker.(server.Pinger); ok {
		pingers = append(pingers, pg)
	}
	return pingers
}

func usesOllama(cfg *config.Config) bool {
	if cfg.Models == nil {
		return false
	}
	for _, e := range cfg.Models.Embeddings {
		if e.Provider == "" || e.Provider == "ollama" {
			return true
		}
	}
	return false
}
