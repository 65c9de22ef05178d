package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/embedder"
	"github.com/mgruene/ARANDU-PUB/internal/extract"
	"github.com/mgruene/ARANDU-PUB/internal/metadata"
	"github.com/mgruene/ARANDU-PUB/internal/store"
	"github.com/mgruene/ARANDU-PUB/internal/vectorstore"
)

const titlePage = `Hochschule für Technik
Bachelorarbeit

Thema: Analyse verteilter Systeme
mit Go

vorgelegt von: Max Mustermann
Matrikelnummer: 1234567
Studiengang: Informatik
Erstprüfer: prof. dr. anna schmidt
Zweitprüfer: Meyer, Bernd
Abgabedatum: 12. März 2024`

var bodyPage = strings.Repeat("Dieser Absatz beschreibt die Methodik der Arbeit. ", 12)

type fakeText struct {
	page extract.PageText
	err  error
}

func (f fakeText) Extract(context.Context, []byte) (extract.PageText, error) {
	return f.page, f.err
}

func thesisText() fakeText {
	return fakeText{page: extract.PageText{
		Pages: []string{titlePage, bodyPage},
		Full:  titlePage + "\n" + bodyPage,
	}}
}

type backendFunc func(ctx context.Context, model string, r embedder.Request) ([][]float32, error)

func (f backendFunc) Embed(ctx context.Context, model string, r embedder.Request) ([][]float32, error) {
	return f(ctx, model, r)
}

// lengthBackend returns a two-dimensional vector derived from the text.
var lengthBackend = backendFunc(func(_ context.Context, _ string, r embedder.Request) ([][]float32, error) {
	text := r.Prompt + r.Input
	return [][]float32{{float32(len(text)), float32(strings.Count(text, "e") + 1)}}, nil
})

var emptyBackend = backendFunc(func(context.Context, string, embedder.Request) ([][]float32, error) {
	return nil, nil
})

type sources map[string]embedder.Backend

func (s sources) Client(alias string) (*embedder.Client, error) {
	b, ok := s[alias]
	if !ok {
		return nil, fmt.Errorf("unknown alias %q", alias)
	}
	return embedder.NewClient(b, embedder.ClientConfig{Alias: alias, Model: alias + "-model"}, nil), nil
}

type fixture struct {
	orch    *Orchestrator
	vectors *vectorstore.MemoryStore
	state   store.Store
	metrics *Metrics
}

func testRetrieval() config.Retrieval {
	r := config.DefaultRetrieval()
	r.ChildChunkSize = 120
	r.ChildChunkOverlap = 20
	r.MinChunkChars = 10
	r.EmbeddingAliasDefault = "nomic"
	r.EmbeddingAliasFallbacks = []string{"mxbai"}
	return r
}

func newFixture(t *testing.T, text extract.TextExtractor, embeddings sources, mutate ...func(*Config)) fixture {
	t.Helper()
	meta, err := metadata.NewExtractor(metadata.NewRegistry([]metadata.Examiner{
		{Name: "Prof. Dr. Anna Schmidt"},
		{Name: "Dr. Bernd Meyer", Variants: []string{"Bernd Meyer"}},
	}), nil)
	require.NoError(t, err)
	state, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	cfg := &Config{Retrieval: testRetrieval()}
	for _, m := range mutate {
		m(cfg)
	}
	f := fixture{
		vectors: vectorstore.NewMemoryStore(),
		state:   state,
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	f.orch, err = New(Deps{
		Text:       text,
		Metadata:   meta,
		Embeddings: embeddings,
		Vectors:    f.vectors,
		State:      state,
		Metrics:    f.metrics,
		Log:        slog.New(slog.DiscardHandler),
	}, cfg)
	require.NoError(t, err)
	return f
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(Deps{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text extractor")
}

func TestIngest_WritesBothTiersAndReceipt(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
	ctx := context.Background()

	rcpt, err := f.orch.Ingest(ctx, Request{Data: []byte("%PDF-1.7"), Filename: "thesis.pdf", DocID: "doc-1"})
	require.NoError(t, err)

	assert.Equal(t, "doc-1", rcpt.DocID)
	assert.Equal(t, "thesis.pdf", rcpt.File)
	assert.Equal(t, metadata.WorkBachelor, rcpt.WorkType)
	assert.Equal(t, store.Collections{Parents: "bachelor_parents", Chunks: "bachelor_chunks"}, rcpt.Collections)
	assert.Equal(t, "nomic", rcpt.EmbeddingAlias)
	assert.Equal(t, "nomic-model", rcpt.EmbeddingModel)
	assert.Equal(t, 2, rcpt.EmbeddingDim)
	assert.Equal(t, store.StatusIngested, rcpt.Status)
	assert.Equal(t, metadata.SourceRegex, rcpt.Source)
	assert.Equal(t, "Max Mustermann", rcpt.Metadata[metadata.StudentName])
	assert.Len(t, rcpt.FileHash, 64)
	assert.NotZero(t, rcpt.Counts.Parents)
	assert.Greater(t, rcpt.Counts.Children, rcpt.Counts.Parents)

	parents := f.vectors.Collection("bachelor_parents")
	chunks := f.vectors.Collection("bachelor_chunks")
	require.NotNil(t, parents)
	require.NotNil(t, chunks)
	assert.Equal(t, rcpt.Counts.Parents, parents.Len())
	assert.Equal(t, rcpt.Counts.Children, chunks.Len())

	_, md, vec, ok := parents.Get("doc-1_p_0000")
	require.True(t, ok)
	assert.Len(t, vec, 2)
	assert.Equal(t, "parent", md["level"])
	assert.Equal(t, "nomic", md["embedding_alias"])
	assert.Equal(t, 2, md["embedding_dim"])
	assert.Equal(t, "thesis.pdf", md["source_file"])

	_, md, vec, ok = chunks.Get("doc-1_c_0000")
	require.True(t, ok)
	assert.Empty(t, vec)
	assert.Equal(t, "child", md["level"])
	assert.Equal(t, "nomic-model", md["embedding_model"])

	got, err := f.state.ReadReceipt(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, rcpt.Counts, got.Counts)

	idx, err := f.state.ListIndex(ctx)
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.Equal(t, "Analyse verteilter Systeme mit Go", idx[0].ThesisTitle)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ingestsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.embeddingAttemptsTotal.WithLabelValues("nomic", embedder.OutcomeOK)))
}

func TestIngest_RepeatReplacesRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
	req := Request{Data: []byte("%PDF"), DocID: "same"}

	first, err := f.orch.Ingest(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orch.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, first.Counts.Parents, f.vectors.Collection("bachelor_parents").Len())
	assert.Equal(t, first.Counts.Children, f.vectors.Collection("bachelor_chunks").Len())

	idx, err := f.state.ListIndex(context.Background())
	require.NoError(t, err)
	assert.Len(t, idx, 1)
}

// textByData returns a different page set per upload so one docid can be
// re-ingested with shorter content.
type textByData map[string]extract.PageText

func (m textByData) Extract(_ context.Context, data []byte) (extract.PageText, error) {
	return m[string(data)], nil
}

func TestIngest_ShorterRepeatDropsStaleRecords(t *testing.T) {
	t.Parallel()
	long := thesisText().page
	shortBody := "Kurzfassung der Methodik und der Ergebnisse dieser Arbeit."
	short := extract.PageText{Pages: []string{titlePage, shortBody}, Full: titlePage + "\n" + shortBody}
	f := newFixture(t, textByData{"long": long, "short": short}, sources{"nomic": lengthBackend})
	ctx := context.Background()

	first, err := f.orch.Ingest(ctx, Request{Data: []byte("long"), DocID: "shrink"})
	require.NoError(t, err)
	second, err := f.orch.Ingest(ctx, Request{Data: []byte("short"), DocID: "shrink"})
	require.NoError(t, err)
	require.Less(t, second.Counts.Children, first.Counts.Children)

	assert.Equal(t, second.Counts.Parents, f.vectors.Collection("bachelor_parents").Len())
	assert.Equal(t, second.Counts.Children, f.vectors.Collection("bachelor_chunks").Len())
}

func TestIngest_WorkTypeChangeDropsOldCollections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
	ctx := context.Background()

	_, err := f.orch.Ingest(ctx, Request{Data: []byte("%PDF"), DocID: "moved"})
	require.NoError(t, err)
	rcpt, err := f.orch.Ingest(ctx, Request{Data: []byte("%PDF"), DocID: "moved", Overrides: map[string]any{"work_type": "master"}})
	require.NoError(t, err)

	assert.Equal(t, 0, f.vectors.Collection("bachelor_parents").Len())
	assert.Equal(t, 0, f.vectors.Collection("bachelor_chunks").Len())
	assert.Equal(t, rcpt.Counts.Children, f.vectors.Collection("master_chunks").Len())
}

// A child size <= 0 keeps the whole text in one child.
func TestIngest_ZeroChildSizeSingleChild(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend}, func(c *Config) {
		c.Retrieval.ChildChunkSize = 0
	})
	rcpt, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "whole"})
	require.NoError(t, err)
	assert.Equal(t, 1, rcpt.Counts.Children)
	assert.Equal(t, 1, rcpt.Counts.Parents)
}

// A group size <= 0 puts every child under one parent.
func TestIngest_ZeroGroupSizeSingleParent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend}, func(c *Config) {
		c.Retrieval.ParentGroupSize = 0
	})
	rcpt, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "onegroup"})
	require.NoError(t, err)
	assert.Greater(t, rcpt.Counts.Children, 1)
	assert.Equal(t, 1, rcpt.Counts.Parents)

	_, md, _, ok := f.vectors.Collection("bachelor_parents").Get("onegroup_p_0000")
	require.True(t, ok)
	assert.Equal(t, rcpt.Counts.Children, md["children_count"])
}

func TestNew_UnsetRetrievalTakesDefaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend}, func(c *Config) {
		c.Retrieval = config.Retrieval{}
	})
	assert.Equal(t, config.DefaultRetrieval().ChildChunkSize, f.orch.cfg.Retrieval.ChildChunkSize)
	assert.Equal(t, config.DefaultRetrieval().ParentGroupSize, f.orch.cfg.Retrieval.ParentGroupSize)
}

func TestIngest_ConcurrentSameDocID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "busy"})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	idx, err := f.state.ListIndex(context.Background())
	require.NoError(t, err)
	assert.Len(t, idx, 1)
}

func TestIngest_FallsBackToNextAlias(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": emptyBackend, "mxbai": lengthBackend})

	rcpt, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "fb"})
	require.NoError(t, err)
	assert.Equal(t, "mxbai", rcpt.EmbeddingAlias)
	assert.Equal(t, []string{"nomic", "mxbai"}, rcpt.EmbeddingTried)
	assert.False(t, rcpt.Averaged)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.embeddingAttemptsTotal.WithLabelValues("nomic", embedder.OutcomeEmpty)))
}

func TestIngest_AveragesChildrenWhenParentsFail(t *testing.T) {
	t.Parallel()
	// parents are longer than any child, so only children get vectors
	shortOnly := backendFunc(func(ctx context.Context, model string, r embedder.Request) ([][]float32, error) {
		if len([]rune(r.Prompt+r.Input)) > 120 {
			return nil, nil
		}
		return lengthBackend(ctx, model, r)
	})
	f := newFixture(t, thesisText(), sources{"nomic": shortOnly})

	rcpt, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "avg"})
	require.NoError(t, err)
	assert.True(t, rcpt.Averaged)
	assert.Equal(t, "nomic", rcpt.EmbeddingAlias)

	_, md, vec, ok := f.vectors.Collection("bachelor_parents").Get("avg_p_0000")
	require.True(t, ok)
	assert.Len(t, vec, 2)
	assert.Equal(t, true, md["embedding_averaged"])
}

func TestIngest_ExhaustedPersistsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": emptyBackend, "mxbai": emptyBackend})

	_, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "none"})
	require.ErrorIs(t, err, ErrExhausted)
	var ex *ExhaustionError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, []string{"nomic", "mxbai"}, ex.Tried)
	assert.True(t, strings.HasPrefix(err.Error(), "ingest: resolve_embeddings: "))

	assert.Nil(t, f.vectors.Collection("bachelor_parents"))
	assert.Nil(t, f.vectors.Collection("bachelor_chunks"))
	_, err = f.state.ReadReceipt(context.Background(), "none")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ingestsTotal.WithLabelValues("exhausted")))
}

func TestIngest_MetadataErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		req     Request
		kind    error
		missing []string
	}{
		{
			name: "empty metadata",
			req:  Request{Metadata: map[string]any{"metadata": map[string]any{}, "student_name": nil}},
			kind: ErrInput,
		},
		{
			name: "missing required",
			req: Request{Metadata: map[string]any{
				"student_name": "Doe", "thesis_title": "T", "matriculation_number": "1",
				"study_program": "Informatik", "examiner_first": "A", "submission_date": "2024-03-12",
			}},
			kind:    ErrValidation,
			missing: []string{metadata.ExaminerSecond, metadata.WorkType},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
			tc.req.Data = []byte("%PDF")
			tc.req.DocID = "meta"

			_, err := f.orch.Ingest(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.kind)
			assert.Contains(t, err.Error(), "ingest: finalize_metadata: ")
			if tc.missing != nil {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tc.missing, ve.Missing)
			}
		})
	}
}

func TestIngest_SuppliedMetadataAndOverrides(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})

	rcpt, err := f.orch.Ingest(context.Background(), Request{
		Data:  []byte("%PDF"),
		DocID: "sup",
		Metadata: map[string]any{
			"metadata": map[string]any{
				"student_name": "Inner Name", "thesis_title": "Titel", "matriculation_number": "42",
				"study_program": "BWL", "examiner_first": "A", "examiner_second": "B",
				"submission_date": "2024-01-01", "work_type": "bachelor",
			},
			"student_name": "  Doe  ",
			"confidence":   map[string]any{"student_name": 0.9},
		},
		Overrides: map[string]any{"work_type": "Master Thesis", "thesis_title": ""},
	})
	require.NoError(t, err)

	assert.Equal(t, "Doe", rcpt.Metadata["student_name"])
	assert.Equal(t, "Titel", rcpt.Metadata["thesis_title"])
	assert.Equal(t, "Master Thesis", rcpt.WorkType)
	assert.Equal(t, "master_thesis_parents", rcpt.Collections.Parents)
	assert.Equal(t, SourceUser, rcpt.Source)
	assert.InDelta(t, 0.9, rcpt.Confidence["student_name"], 1e-9)
	assert.NotNil(t, f.vectors.Collection("master_thesis_chunks"))
}

func TestIngest_InputErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text extract.TextExtractor
		req  Request
	}{
		{"empty data", thesisText(), Request{}},
		{"bad docid", thesisText(), Request{Data: []byte("x"), DocID: "../etc"}},
		{"scanned pdf", fakeText{err: fmt.Errorf("page 1: %w", extract.ErrNoText)}, Request{Data: []byte("x")}},
		{"blank text", fakeText{page: extract.PageText{Pages: []string{" "}, Full: " "}}, Request{Data: []byte("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tc.text, sources{"nomic": lengthBackend})
			_, err := f.orch.Ingest(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrInput)
			assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ingestsTotal.WithLabelValues("input_error")))
		})
	}
}

func TestIngest_InvalidChunkingIsValidationError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend}, func(c *Config) {
		c.Retrieval.ChildChunkOverlap = c.Retrieval.ChildChunkSize
	})
	_, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "chunk"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "ingest: build_children: ")
}

func TestIngest_NoChildrenAfterFilter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend}, func(c *Config) {
		c.Retrieval.MinChunkChars = 10_000
	})
	_, err := f.orch.Ingest(context.Background(), Request{Data: []byte("%PDF"), DocID: "short"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "ingest: filter_and_align: ")
}

func TestIngest_SelectAndDerivedDocID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
	data := []byte("%PDF-content")

	rcpt, err := f.orch.Ingest(context.Background(), Request{Data: data, Select: true})
	require.NoError(t, err)
	assert.Equal(t, DocIDFor(data), rcpt.DocID)
	assert.Equal(t, rcpt.DocID+".pdf", rcpt.File)

	sel, err := f.state.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rcpt.DocID, sel.DocID)
}

func TestIngest_CancelledContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.orch.Ingest(ctx, Request{Data: []byte("%PDF"), DocID: "gone"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})
	ctx := context.Background()

	_, err := f.orch.Search(ctx, SearchRequest{Query: "Methodik"})
	require.ErrorIs(t, err, ErrInput)

	_, err = f.orch.Ingest(ctx, Request{Data: []byte("a"), DocID: "one", Select: true})
	require.NoError(t, err)
	_, err = f.orch.Ingest(ctx, Request{Data: []byte("b"), DocID: "two"})
	require.NoError(t, err)

	res, err := f.orch.Search(ctx, SearchRequest{Query: "Methodik", K: 2})
	require.NoError(t, err)
	assert.Equal(t, "one", res.DocID)
	assert.Equal(t, "bachelor_parents", res.Collection)
	assert.Equal(t, "nomic", res.Alias)
	require.Len(t, res.Hits, 2)
	for _, h := range res.Hits {
		assert.Equal(t, "one", h.Metadata["docid"])
	}

	_, err = f.orch.Search(ctx, SearchRequest{Query: "x", DocID: "unknown"})
	require.ErrorIs(t, err, ErrInput)
	_, err = f.orch.Search(ctx, SearchRequest{Query: "  "})
	require.ErrorIs(t, err, ErrInput)
}

func TestPreview(t *testing.T) {
	t.Parallel()
	f := newFixture(t, thesisText(), sources{"nomic": lengthBackend})

	p, err := f.orch.Preview(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Pages)
	assert.Equal(t, "1234567", p.Fields[metadata.MatriculationNumber])
	assert.Empty(t, p.Missing)

	_, err = f.orch.Preview(context.Background(), nil)
	require.ErrorIs(t, err, ErrInput)

	// preview writes nothing
	idx, err := f.state.ListIndex(context.Background())
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		kind error
		want string
	}{
		{&InputError{Reason: "empty"}, ErrInput, "input_error"},
		{&ValidationError{Reason: "missing", Missing: []string{"a"}}, ErrValidation, "validation_error"},
		{&BackendTransientError{Backend: "qdrant", Err: errors.New("refused")}, ErrBackendTransient, "backend_error"},
		{&ExhaustionError{Tried: []string{"a"}}, ErrExhausted, "exhausted"},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("ingest: stage: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.kind)
		assert.Equal(t, tc.want, resultLabel(wrapped))
		for _, other := range []error{ErrInput, ErrValidation, ErrBackendTransient, ErrExhausted} {
			if other != tc.kind {
				assert.NotErrorIs(t, wrapped, other)
			}
		}
	}
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "error", resultLabel(errors.New("other")))
	assert.Equal(t, "missing [a, b]", (&ValidationError{Reason: "missing", Missing: []string{"a", "b"}}).Error())
}

func TestCollectionsFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, store.Collections{Parents: "bachelor_parents", Chunks: "bachelor_chunks"}, CollectionsFor("bachelor", "x"))
	assert.Equal(t, "master_thesis_parents", CollectionsFor(" Master Thesis ", "x").Parents)
	assert.Equal(t, "fallback_chunks", CollectionsFor("!!!", "fallback").Chunks)
}

func TestAliases(t *testing.T) {
	t.Parallel()
	r := config.Retrieval{EmbeddingAliasDefault: "nomic", EmbeddingAliasFallbacks: []string{"mxbai", " ", "nomic", "jina-de"}}
	assert.Equal(t, []string{"nomic", "mxbai", "jina-de"}, Aliases(r))
}
