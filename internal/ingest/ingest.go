// Package ingest turns one thesis PDF into a child/parent chunk hierarchy
// with embeddings in the vector store and a receipt in the state store.
// Stages run strictly in order and nothing is persisted until every earlier
// stage has succeeded. Repeating an ingest for the same document id first
// drops the records the earlier run stored, so nothing stale survives.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mgruene/ARANDU-PUB/internal/archive"
	"github.com/mgruene/ARANDU-PUB/internal/chunking"
	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/embedder"
	"github.com/mgruene/ARANDU-PUB/internal/extract"
	"github.com/mgruene/ARANDU-PUB/internal/lock"
	"github.com/mgruene/ARANDU-PUB/internal/metadata"
	"github.com/mgruene/ARANDU-PUB/internal/store"
	"github.com/mgruene/ARANDU-PUB/internal/vectorstore"
)

// Stage names, in execution order. They appear in wrapped errors, logs and
// the stage duration metric.
const (
	StageExtractText       = "extract_text"
	StageFinalizeMetadata  = "finalize_metadata"
	StageBuildChildren     = "build_children"
	StageFilterAndAlign    = "filter_and_align"
	StageBuildParents      = "build_parents"
	StageResolveEmbeddings = "resolve_embeddings"
	StageSanitizeMetadata  = "sanitize_metadata"
	StageUpsert            = "upsert"
	StageBuildReceipt      = "build_receipt"
	StagePersistState      = "persist_state"
)

// SourceUser marks metadata supplied by the caller rather than extracted.
const SourceUser = "user"

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	// Text extracts page text from the uploaded bytes. Required.
	Text extract.TextExtractor

	// Metadata resolves fields from page one when the request carries none.
	// Required.
	Metadata *metadata.Extractor

	// Embeddings builds embedding clients per registry alias. Required.
	Embeddings embedder.ClientSource

	// Vectors stores parents and children. Required.
	Vectors vectorstore.Store

	// State keeps receipts, the index and the selection. Required.
	State store.Store

	// Archive keeps the raw upload. Defaults to archive.Discard.
	Archive archive.Archive

	// Locker serializes ingests per docid. Defaults to an in-process lock.
	Locker lock.Locker

	// Metrics may be nil.
	Metrics *Metrics

	// Log defaults to a discarding logger.
	Log *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Config holds the chunking and embedding parameters of the pipeline.
type Config struct {
	// Retrieval carries chunk sizes, grouping and the alias cascade.
	Retrieval config.Retrieval

	// Aliases is the embedding cascade. Defaults to the retrieval default
	// alias followed by its fallbacks.
	Aliases []string
}

// Orchestrator runs ingests, previews and searches. It is safe for
// concurrent use; ingests of the same docid are serialized.
type Orchestrator struct {
	text       extract.TextExtractor
	meta       *metadata.Extractor
	embeddings embedder.ClientSource
	vectors    vectorstore.Store
	state      store.Store
	archive    archive.Archive
	locker     lock.Locker
	metrics    *Metrics
	log        *slog.Logger
	now        func() time.Time
	cfg        Config
}

// New constructs an Orchestrator from d and cfg.
func New(d Deps, cfg *Config) (*Orchestrator, error) {
	switch {
	case d.Text == nil:
		return nil, fmt.Errorf("ingest: text extractor must not be nil")
	case d.Metadata == nil:
		return nil, fmt.Errorf("ingest: metadata extractor must not be nil")
	case d.Embeddings == nil:
		return nil, fmt.Errorf("ingest: embedding source must not be nil")
	case d.Vectors == nil:
		return nil, fmt.Errorf("ingest: vector store must not be nil")
	case d.State == nil:
		return nil, fmt.Errorf("ingest: state store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{Retrieval: config.DefaultRetrieval()}
	}
	c := *cfg
	def := config.DefaultRetrieval()
	// Sizes <= 0 mean one child or one parent for the whole document, so only
	// an entirely unset retrieval block takes the default sizes.
	if unsetRetrieval(c.Retrieval) {
		c.Retrieval = def
	}
	if c.Retrieval.TopKDefault <= 0 {
		c.Retrieval.TopKDefault = def.TopKDefault
	}
	if c.Retrieval.DefaultCollection == "" {
		c.Retrieval.DefaultCollection = def.DefaultCollection
	}
	if len(c.Aliases) == 0 {
		c.Aliases = Aliases(c.Retrieval)
	}
	if len(c.Aliases) == 0 {
		return nil, fmt.Errorf("ingest: no embedding alias configured")
	}

	o := &Orchestrator{
		text:       d.Text,
		meta:       d.Metadata,
		embeddings: d.Embeddings,
		vectors:    d.Vectors,
		state:      d.State,
		archive:    d.Archive,
		locker:     d.Locker,
		metrics:    d.Metrics,
		log:        d.Log,
		now:        d.Now,
		cfg:        c,
	}
	if o.archive == nil {
		o.archive = archive.Discard{}
	}
	if o.locker == nil {
		o.locker = lock.NewKeyed()
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

func unsetRetrieval(r config.Retrieval) bool {
	return r.ChildChunkSize == 0 && r.ChildChunkOverlap == 0 &&
		r.ParentGroupSize == 0 && r.ParentGroupOverlap == 0 &&
		r.MinChunkChars == 0 && r.MaxCharsPerEmbedding == 0 &&
		r.TopKDefault == 0 && r.DefaultCollection == "" && r.EmbeddingAgg == "" &&
		r.EmbeddingAliasDefault == "" && len(r.EmbeddingAliasFallbacks) == 0
}

// Aliases returns the embedding cascade of r: the default alias, then the
// fallbacks, without blanks or repeats.
func Aliases(r config.Retrieval) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range append([]string{r.EmbeddingAliasDefault}, r.EmbeddingAliasFallbacks...) {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

var unsafeCollection = regexp.MustCompile(`[^a-z0-9_-]+`)

// CollectionsFor returns the parent and child collection names of a work
// type. An unusable work type falls back to fallback.
func CollectionsFor(workType, fallback string) store.Collections {
	base := strings.ToLower(strings.TrimSpace(workType))
	base = strings.Trim(unsafeCollection.ReplaceAllString(base, "_"), "_")
	if base == "" {
		base = fallback
	}
	return store.Collections{Parents: base + "_parents", Chunks: base + "_chunks"}
}

// DocIDFor derives a stable document id from the document bytes.
func DocIDFor(data []byte) string {
	return archive.FileHash(data)[:16]
}

// Request is one ingest.
type Request struct {
	// Data is the raw PDF. It is never modified.
	Data []byte

	// Filename is the original upload name, recorded as source_file.
	Filename string

	// DocID identifies the document. Empty derives it from Data.
	DocID string

	// Metadata is the optional nested or flat field map. When empty the
	// metadata extractor runs on page one.
	Metadata map[string]any

	// Overrides replace finalized fields with their non-empty values.
	Overrides map[string]any

	// Select makes the document the current thesis once ingested.
	Select bool
}

// run holds the per-ingest state handed from stage to stage.
type run struct {
	o       *Orchestrator
	req     Request
	docid   string
	file    string
	log     *slog.Logger
	builder chunking.Builder

	page       extract.PageText
	fields     map[string]any
	confidence metadata.Confidence
	source     string
	children   []chunking.Child
	parents    []chunking.Parent
	resolution embedder.Resolution

	parentMetas []map[string]any
	childMetas  []map[string]any
	collections store.Collections
	receipt     store.Receipt
}

// Ingest runs every stage for req and returns the persisted receipt.
// Errors are wrapped as "ingest: <stage>: ..." and match ErrInput,
// ErrValidation, ErrExhausted or ErrBackendTransient with errors.Is.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (_ store.Receipt, err error) {
	done := o.metrics.start()
	defer func() { done(err) }()

	if len(req.Data) == 0 {
		return store.Receipt{}, fmt.Errorf("ingest: %w", &InputError{Reason: "empty document"})
	}
	docid := strings.TrimSpace(req.DocID)
	if docid == "" {
		docid = DocIDFor(req.Data)
	}
	if !store.ValidDocID(docid) {
		return store.Receipt{}, fmt.Errorf("ingest: %w", &InputError{Reason: fmt.Sprintf("invalid docid %q", docid)})
	}
	file := strings.TrimSpace(req.Filename)
	if file == "" {
		file = docid + ".pdf"
	}

	log := o.log.With(slog.String("docid", docid))
	unlock, err := o.locker.Lock(ctx, docid)
	if err != nil {
		return store.Receipt{}, fmt.Errorf("ingest: lock: %w", err)
	}
	defer unlock()

	start := time.Now()
	r := &run{o: o, req: req, docid: docid, file: file, log: log}
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageExtractText, r.extractText},
		{StageFinalizeMetadata, r.finalizeMetadata},
		{StageBuildChildren, r.buildChildren},
		{StageFilterAndAlign, r.filterAndAlign},
		{StageBuildParents, r.buildParents},
		{StageResolveEmbeddings, r.resolveEmbeddings},
		{StageSanitizeMetadata, r.sanitizeMetadata},
		{StageUpsert, r.upsert},
		{StageBuildReceipt, r.buildReceipt},
		{StagePersistState, r.persistState},
	}
	for _, st := range stages {
		if err := o.runStage(ctx, log, st.name, st.fn); err != nil {
			return store.Receipt{}, err
		}
	}

	log.Info("ingest complete",
		slog.String("work_type", r.receipt.WorkType),
		slog.Int("parents", r.receipt.Counts.Parents),
		slog.Int("children", r.receipt.Counts.Children),
		slog.String("alias", r.receipt.EmbeddingAlias),
		slog.Bool("averaged", r.receipt.Averaged),
		slog.Duration("duration", time.Since(start)),
	)
	return r.receipt, nil
}

func (o *Orchestrator) runStage(ctx context.Context, log *slog.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ingest: %s: %w", name, err)
	}
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	o.metrics.stage(name, elapsed)
	if err != nil {
		log.Error("ingest stage failed", slog.String("stage", name), slog.String("error", err.Error()))
		return fmt.Errorf("ingest: %s: %w", name, err)
	}
	log.Debug("ingest stage done", slog.String("stage", name), slog.Duration("duration", elapsed))
	return nil
}

func (r *run) extractText(ctx context.Context) error {
	page, err := r.o.text.Extract(ctx, r.req.Data)
	if err != nil {
		if errors.Is(err, extract.ErrUnreadable) || errors.Is(err, extract.ErrNoText) {
			return &InputError{Reason: "no usable text", Err: err}
		}
		return err
	}
	if strings.TrimSpace(page.Full) == "" {
		return &InputError{Reason: "document has no text"}
	}
	r.page = page
	return nil
}

func (r *run) finalizeMetadata(ctx context.Context) error {
	in := r.req.Metadata
	supplied := len(in) > 0
	if !supplied {
		in = r.o.meta.Extract(ctx, r.page.First()).Map()
	}

	fields, conf, source := metadata.Flatten(in)
	fields = metadata.ApplyOverrides(fields, r.req.Overrides)
	if !anyValue(fields) {
		return &InputError{Reason: "metadata is empty"}
	}
	if missing := metadata.MissingRequired(fields); len(missing) > 0 {
		return &ValidationError{Reason: "required metadata missing", Missing: missing}
	}
	if source == "" {
		source = metadata.SourceRegex
		if supplied {
			source = SourceUser
		}
	}
	r.fields, r.confidence, r.source = fields, conf, source
	r.builder = chunking.Builder{
		DocID:      r.docid,
		SourceFile: r.file,
		Fields:     metadata.FieldsOf(fields),
		Log:        r.log,
	}
	return nil
}

func (r *run) buildChildren(context.Context) error {
	rc := r.o.cfg.Retrieval
	children, err := r.builder.Children(r.page.Full, rc.ChildChunkSize, rc.ChildChunkOverlap)
	if err != nil {
		if errors.Is(err, chunking.ErrInvalidParams) {
			return &ValidationError{Reason: "invalid chunking parameters", Err: err}
		}
		return err
	}
	r.children = children
	return nil
}

func (r *run) filterAndAlign(context.Context) error {
	children := chunking.AlignAndPrune(r.children, r.log)
	children = chunking.FilterMinLen(children, r.o.cfg.Retrieval.MinChunkChars, r.log)
	if len(children) == 0 {
		return &ValidationError{Reason: "no children left after filtering"}
	}
	metas := make([]map[string]any, 0, len(children))
	for _, c := range children {
		if c.ID == "" || c.Metadata == nil {
			continue
		}
		metas = append(metas, c.Metadata)
	}
	if len(metas) != len(children) {
		return &ValidationError{Reason: fmt.Sprintf("misaligned children: %d chunks, %d metadatas", len(children), len(metas))}
	}
	r.children = children
	return nil
}

func (r *run) buildParents(context.Context) error {
	rc := r.o.cfg.Retrieval
	r.parents = r.builder.Parents(r.children, rc.ParentGroupSize, rc.ParentGroupOverlap)
	if len(r.parents) == 0 {
		return &ValidationError{Reason: "no parents built"}
	}
	return nil
}

func (r *run) resolveEmbeddings(ctx context.Context) error {
	in := embedder.Input{
		Texts:              make([]string, len(r.parents)),
		IDs:                make([]string, len(r.parents)),
		Metadatas:          make([]map[string]any, len(r.parents)),
		ParentChildIndices: make([][]int, len(r.parents)),
		ChildTexts:         make([]string, len(r.children)),
		ChildIndices:       make([]int, len(r.children)),
	}
	for i, p := range r.parents {
		in.Texts[i], in.IDs[i], in.Metadatas[i], in.ParentChildIndices[i] = p.Text, p.ID, p.Metadata, p.ChildIndices
	}
	for i, c := range r.children {
		in.ChildTexts[i], in.ChildIndices[i] = c.Text, c.Index
	}

	resolver := embedder.NewResolver(r.o.embeddings, r.o.cfg.Aliases, r.log)
	resolver.OnAttempt = r.o.metrics.attempt
	res, err := resolver.Resolve(ctx, in)
	if err != nil {
		if errors.Is(err, embedder.ErrMisaligned) {
			return &ValidationError{Reason: "embedding input misaligned", Err: err}
		}
		return err
	}
	if res.AllEmpty || len(res.Vectors) == 0 {
		return &ExhaustionError{Tried: res.Tried}
	}
	if n := len(res.IDs); len(res.Vectors) != n || len(res.Texts) != n || len(res.Metadatas) != n {
		return &ValidationError{Reason: "embedding result misaligned"}
	}
	r.resolution = res
	return nil
}

func (r *run) sanitizeMetadata(context.Context) error {
	res := r.resolution
	embedding := map[string]any{
		"embedding_alias": res.AliasUsed,
		"embedding_model": res.Model,
		"embedding_dim":   res.Dim,
	}
	if res.Averaged {
		embedding["embedding_averaged"] = true
	}

	r.parentMetas = make([]map[string]any, len(res.Metadatas))
	for i, md := range res.Metadatas {
		r.parentMetas[i] = Sanitize(merge(md, embedding))
	}
	r.childMetas = make([]map[string]any, len(r.children))
	for i, c := range r.children {
		r.childMetas[i] = Sanitize(merge(c.Metadata, embedding))
	}
	return nil
}

func (r *run) upsert(ctx context.Context) error {
	res := r.resolution
	r.collections = CollectionsFor(fmt.Sprint(r.fields[metadata.WorkType]), r.o.cfg.Retrieval.DefaultCollection)

	if err := r.dropPrevious(ctx); err != nil {
		return r.o.vectorErr(err)
	}

	parents, err := r.o.vectors.GetOrCreateCollection(ctx, r.collections.Parents, res.Dim)
	if err != nil {
		return r.o.vectorErr(err)
	}
	if err := parents.Upsert(ctx, res.IDs, res.Texts, r.parentMetas, res.Vectors); err != nil {
		return r.o.vectorErr(err)
	}
	r.o.metrics.records(chunking.LevelParent, len(res.IDs))

	ids := make([]string, len(r.children))
	texts := make([]string, len(r.children))
	for i, c := range r.children {
		ids[i], texts[i] = c.ID, c.Text
	}
	chunks, err := r.o.vectors.GetOrCreateCollection(ctx, r.collections.Chunks, res.Dim)
	if err != nil {
		return r.o.vectorErr(err)
	}
	if err := chunks.Upsert(ctx, ids, texts, r.childMetas, nil); err != nil {
		return r.o.vectorErr(err)
	}
	r.o.metrics.records(chunking.LevelChild, len(ids))

	r.log.Info("records upserted",
		slog.String("parents_collection", r.collections.Parents),
		slog.Int("parents", len(res.IDs)),
		slog.String("chunks_collection", r.collections.Chunks),
		slog.Int("children", len(ids)),
	)
	return nil
}

// dropPrevious deletes the records of docid from the target collections and,
// when an earlier receipt names other collections, from those as well. A
// shorter re-ingest would otherwise leave trailing records behind.
func (r *run) dropPrevious(ctx context.Context) error {
	targets := map[string]int{
		r.collections.Parents: r.resolution.Dim,
		r.collections.Chunks:  r.resolution.Dim,
	}
	prev, err := r.o.state.ReadReceipt(ctx, r.docid)
	switch {
	case err == nil:
		for _, name := range []string{prev.Collections.Parents, prev.Collections.Chunks} {
			if _, ok := targets[name]; !ok && name != "" {
				targets[name] = prev.EmbeddingDim
			}
		}
	case !errors.Is(err, store.ErrNotFound):
		r.log.Warn("previous receipt unreadable", slog.String("error", err.Error()))
	}

	filter := vectorstore.Filter{"docid": r.docid}
	for name, dim := range targets {
		col, err := r.o.vectors.GetOrCreateCollection(ctx, name, dim)
		if err != nil {
			return err
		}
		if err := col.Delete(ctx, filter); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) vectorErr(err error) error {
	if errors.Is(err, vectorstore.ErrMisaligned) {
		return &ValidationError{Reason: "upsert misaligned", Err: err}
	}
	return &BackendTransientError{Backend: o.vectors.Name(), Err: err}
}

func (r *run) buildReceipt(context.Context) error {
	res := r.resolution
	r.receipt = store.Receipt{
		DocID:          r.docid,
		File:           r.file,
		FileHash:       archive.FileHash(r.req.Data),
		WorkType:       fmt.Sprint(r.fields[metadata.WorkType]),
		Collections:    r.collections,
		Counts:         store.Counts{Parents: len(res.IDs), Children: len(r.children)},
		EmbeddingAlias: res.AliasUsed,
		EmbeddingModel: res.Model,
		EmbeddingDim:   res.Dim,
		EmbeddingTried: res.Tried,
		Averaged:       res.Averaged,
		Metadata:       Sanitize(r.fields),
		Confidence:     map[string]float64(r.confidence),
		Source:         r.source,
		Status:         store.StatusIngested,
		IngestAt:       r.o.now().UTC(),
	}
	return nil
}

func (r *run) persistState(ctx context.Context) error {
	sidecar := map[string]any{
		"docid":      r.docid,
		"metadata":   r.receipt.Metadata,
		"confidence": r.receipt.Confidence,
		"source":     r.receipt.Source,
		"filehash":   r.receipt.FileHash,
	}
	loc, err := r.o.archive.Put(ctx, r.docid, r.file, r.req.Data, sidecar)
	if err != nil {
		r.log.Warn("archive failed, continuing without it", slog.String("error", err.Error()))
	} else {
		r.receipt.Archive = loc
	}

	if err := r.o.state.WriteReceipt(ctx, r.receipt); err != nil {
		return &BackendTransientError{Backend: "state", Err: err}
	}
	if err := r.o.state.UpsertIndexEntry(ctx, store.EntryFromReceipt(r.receipt)); err != nil {
		return &BackendTransientError{Backend: "state", Err: err}
	}
	if r.req.Select {
		if _, err := r.o.state.SetCurrent(ctx, r.docid); err != nil {
			return &BackendTransientError{Backend: "state", Err: err}
		}
	}
	return nil
}

func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func anyValue(md map[string]any) bool {
	for _, v := range md {
		switch x := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(x) != "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}
