package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mgruene/ARANDU-PUB/internal/metadata"
	"github.com/mgruene/ARANDU-PUB/internal/store"
	"github.com/mgruene/ARANDU-PUB/internal/vectorstore"
)

// Preview is the metadata a document would be ingested with.
type Preview struct {
	metadata.Result
	Pages int `json:"pages"`
	Chars int `json:"chars"`
}

// Preview extracts page-one metadata from data without writing anything.
func (o *Orchestrator) Preview(ctx context.Context, data []byte) (Preview, error) {
	if len(data) == 0 {
		return Preview{}, fmt.Errorf("ingest: preview: %w", &InputError{Reason: "empty document"})
	}
	r := &run{o: o, req: Request{Data: data}, log: o.log}
	if err := r.extractText(ctx); err != nil {
		return Preview{}, fmt.Errorf("ingest: preview: %w", err)
	}
	res := o.meta.Extract(ctx, r.page.First())
	o.log.Info("metadata preview",
		slog.String("source", res.Source),
		slog.Any("missing", res.Missing),
	)
	return Preview{Result: res, Pages: len(r.page.Pages), Chars: len([]rune(r.page.Full))}, nil
}

// SearchRequest asks for the parents of one document closest to Query.
type SearchRequest struct {
	Query string
	// DocID defaults to the current selection.
	DocID string
	// K defaults to the registry's top_k_default.
	K int
}

// SearchResult holds the hits of a search and where they came from.
type SearchResult struct {
	DocID      string            `json:"docid"`
	Collection string            `json:"collection"`
	Alias      string            `json:"embedding_alias"`
	Hits       []vectorstore.Hit `json:"hits"`
}

// Search embeds req.Query with the alias the document was ingested with and
// returns the nearest parents of that document.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	res, err := o.search(ctx, req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("ingest: search: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return SearchResult{}, &InputError{Reason: "empty query"}
	}

	docid := strings.TrimSpace(req.DocID)
	if docid == "" {
		sel, err := o.state.Current(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return SearchResult{}, &InputError{Reason: "no docid given and no thesis selected"}
		}
		if err != nil {
			return SearchResult{}, &BackendTransientError{Backend: "state", Err: err}
		}
		docid = sel.DocID
	}
	rcpt, err := o.state.ReadReceipt(ctx, docid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidDocID) {
			return SearchResult{}, &InputError{Reason: fmt.Sprintf("unknown docid %q", docid), Err: err}
		}
		return SearchResult{}, &BackendTransientError{Backend: "state", Err: err}
	}

	alias := rcpt.EmbeddingAlias
	if alias == "" {
		alias = o.cfg.Aliases[0]
	}
	cl, err := o.embeddings.Client(alias)
	if err != nil {
		return SearchResult{}, &BackendTransientError{Backend: "embedding " + alias, Err: err}
	}
	vecs, err := cl.EmbedTexts(ctx, []string{query})
	if err != nil {
		return SearchResult{}, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return SearchResult{}, &BackendTransientError{Backend: "embedding " + alias, Err: errors.New("no vector for query")}
	}

	coll, err := o.vectors.GetOrCreateCollection(ctx, rcpt.Collections.Parents, len(vecs[0]))
	if err != nil {
		return SearchResult{}, o.vectorErr(err)
	}
	k := req.K
	if k <= 0 {
		k = o.cfg.Retrieval.TopKDefault
	}
	hits, err := coll.Query(ctx, vecs[0], k, vectorstore.Filter{"docid": docid})
	if err != nil {
		return SearchResult{}, o.vectorErr(err)
	}
	o.log.Info("search",
		slog.String("docid", docid),
		slog.String("alias", alias),
		slog.Int("k", k),
		slog.Int("hits", len(hits)),
	)
	return SearchResult{DocID: docid, Collection: coll.Name(), Alias: alias, Hits: hits}, nil
}

// State returns the state store the orchestrator writes receipts to.
func (o *Orchestrator) State() store.Store { return o.state }
