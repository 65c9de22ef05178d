package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgruene/ARANDU-PUB/internal/archive"
	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/embedder"
	"github.com/mgruene/ARANDU-PUB/internal/extract"
	"github.com/mgruene/ARANDU-PUB/internal/ingest"
	"github.com/mgruene/ARANDU-PUB/internal/lock"
	"github.com/mgruene/ARANDU-PUB/internal/metadata"
	"github.com/mgruene/ARANDU-PUB/internal/provider"
	"github.com/mgruene/ARANDU-PUB/internal/store"
	"github.com/mgruene/ARANDU-PUB/internal/vectorstore"
)

// pipeline holds the orchestrator and the backends it was built from, so
// serve and doctor can probe them. close releases every backend.
type pipeline struct {
	orch    *ingest.Orchestrator
	vectors vectorstore.Store
	state   store.Store
	locker  lock.Locker
	embeds  *embedder.Factory
	llm     *provider.Generator
	closers []func() error
}

func (p *pipeline) close(log *slog.Logger) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			log.Warn("close failed", slog.Any("error", err))
		}
	}
}

// buildPipeline wires every backend selected by cfg into an Orchestrator.
// The LLM fallback is optional: without a usable metadata LLM the
// heuristics run alone.
func buildPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*pipeline, error) {
	p := &pipeline{}
	fail := func(err error) (*pipeline, error) {
		p.close(log)
		return nil, err
	}

	text, err := extract.New(cfg.Extractor.Backend, log)
	if err != nil {
		return fail(err)
	}

	meta, llm, err := buildMetadata(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	p.llm = llm

	p.embeds = embedder.NewFactory(cfg, log)
	embedder.WarnChatModels(cfg.Models, log)

	p.vectors, err = vectorstore.Open(ctx, cfg.VectorStore, log)
	if err != nil {
		return fail(fmt.Errorf("vector store: %w", err))
	}
	p.closers = append(p.closers, p.vectors.Close)
	log.Info("vector store ready", slog.String("backend", p.vectors.Name()))

	p.state, err = store.Open(cfg, log)
	if err != nil {
		return fail(fmt.Errorf("state store: %w", err))
	}
	p.closers = append(p.closers, p.state.Close)

	arch, err := archive.Open(ctx, cfg, log)
	if err != nil {
		return fail(fmt.Errorf("archive: %w", err))
	}

	p.locker, err = lock.Open(cfg.Lock, log)
	if err != nil {
		return fail(fmt.Errorf("lock: %w", err))
	}
	if c, ok := p.locker.(interface{ Close() error }); ok {
		p.closers = append(p.closers, c.Close)
	}

	retrieval := config.DefaultRetrieval()
	if cfg.Models != nil {
		retrieval = cfg.Models.Retrieval
	}
	p.orch, err = ingest.New(ingest.Deps{
		Text:       text,
		Metadata:   meta,
		Embeddings: p.embeds,
		Vectors:    p.vectors,
		State:      p.state,
		Archive:    arch,
		Locker:     p.locker,
		Metrics:    ingest.NewMetrics(reg),
		Log:        log,
	}, &ingest.Config{Retrieval: retrieval})
	if err != nil {
		return fail(err)
	}
	return p, nil
}

// buildMetadata constructs the metadata extractor with the examiner
// registry and, when the registry names a reachable LLM, the fallback.
func buildMetadata(ctx context.Context, cfg *config.Config, log *slog.Logger) (*metadata.Extractor, *provider.Generator, error) {
	examiners := make([]metadata.Examiner, 0, len(cfg.Examiners))
	for _, e := range cfg.Examiners {
		examiners = append(examiners, metadata.Examiner{Name: e.Name, Variants: e.Variants})
	}

	var opts []metadata.Option
	gen, err := provider.NewMetadataGenerator(ctx, cfg, log)
	if err != nil {
		log.Warn("metadata llm fallback disabled", slog.Any("error", err))
		gen = nil
	} else {
		maxTokens := 0
		if m, err := cfg.Models.MetadataLLM(); err == nil {
			maxTokens = m.MaxTokens
		}
		opts = append(opts, metadata.WithFallback(metadata.NewFallback(gen, maxTokens, log)))
		log.Info("metadata llm fallback enabled", slog.String("alias", gen.Alias()))
	}

	ex, err := metadata.NewExtractor(metadata.NewRegistry(examiners), log, opts...)
	if err != nil {
		return nil, nil, err
	}
	return ex, gen, nil
}
