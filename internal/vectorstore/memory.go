package vectorstore

import (
	"context"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
)

// MemoryStore keeps collections in process memory. It backs tests and
// dry runs; nothing survives a restart.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*MemoryCollection
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*MemoryCollection)}
}

// GetOrCreateCollection implements Store. dim is recorded on creation only.
func (s *MemoryStore) GetOrCreateCollection(_ context.Context, name string, dim int) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &MemoryCollection{name: name, dim: dim, records: make(map[string]memoryRecord)}
		s.collections[name] = c
	}
	return c, nil
}

// Collection returns an existing collection, or nil.
func (s *MemoryStore) Collection(name string) *MemoryCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[name]
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Name implements Store.
func (s *MemoryStore) Name() string { return BackendMemory }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

type memoryRecord struct {
	document string
	metadata map[string]any
	vector   []float32
}

// MemoryCollection is a Collection held in memory.
type MemoryCollection struct {
	name string
	dim  int

	mu      sync.RWMutex
	records map[string]memoryRecord
}

// Name implements Collection.
func (c *MemoryCollection) Name() string { return c.name }

// Dim returns the dimension the collection was created with.
func (c *MemoryCollection) Dim() int { return c.dim }

// Len returns the number of stored records.
func (c *MemoryCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// IDs returns the stored ids in sorted order.
func (c *MemoryCollection) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.records))
}

// Get returns the document, metadata and vector stored under id.
func (c *MemoryCollection) Get(id string) (string, map[string]any, []float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	return r.document, r.metadata, r.vector, ok
}

// Upsert implements Collection.
func (c *MemoryCollection) Upsert(_ context.Context, ids, documents []string, metadatas []map[string]any, embeddings [][]float32) error {
	if err := checkAligned(ids, documents, metadatas, embeddings); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		r := memoryRecord{document: documents[i], metadata: maps.Clone(metadatas[i])}
		if embeddings != nil {
			r.vector = slices.Clone(embeddings[i])
		}
		c.records[id] = r
	}
	return nil
}

// Query implements Collection with exact cosine similarity.
func (c *MemoryCollection) Query(_ context.Context, embedding []float32, k int, filter Filter) ([]Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var hits []Hit
	for id, r := range c.records {
		if len(r.vector) == 0 || len(r.vector) != len(embedding) || !matches(r.metadata, filter) {
			continue
		}
		hits = append(hits, Hit{ID: id, Document: r.document, Metadata: maps.Clone(r.metadata), Score: cosine(embedding, r.vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete implements Collection.
func (c *MemoryCollection) Delete(_ context.Context, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.records {
		if matches(r.metadata, filter) {
			delete(c.records, id)
		}
	}
	return nil
}

func matches(md map[string]any, filter Filter) bool {
	for k, want := range filter {
		if md[k] != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
