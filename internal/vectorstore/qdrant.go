package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// denseVector is the named vector every collection is created with. Named
// vectors let records without a vector live in the same collection.
const denseVector = "dense"

// Payload keys reserved by the Qdrant backend.
const (
	payloadID       = "record_id"
	payloadDocument = "document"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
	log    *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

// NewQdrantStore creates a QdrantStore. The connection is established lazily
// by the gRPC client; use Ping to verify reachability.
func NewQdrantStore(cfg *QdrantConfig, log *slog.Logger) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, log: log, known: make(map[string]bool)}, nil
}

// GetOrCreateCollection implements Store.
func (s *QdrantStore) GetOrCreateCollection(ctx context.Context, name string, dim int) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[name] {
		return &qdrantCollection{client: s.client, name: name}, nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		if dim <= 0 {
			return nil, fmt.Errorf("qdrant: cannot create collection %q without a vector size", name)
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVector: {Size: uint64(dim), Distance: qdrant.Distance_Cosine},
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
		}
		s.log.Info("qdrant collection created", slog.String("collection", name), slog.Int("dim", dim))
	}
	s.known[name] = true
	return &qdrantCollection{client: s.client, name: name}, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Name implements Store.
func (s *QdrantStore) Name() string { return BackendQdrant }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

type qdrantCollection struct {
	client *qdrant.Client
	name   string
}

func (c *qdrantCollection) Name() string { return c.name }

// PointID maps a record id onto the UUID Qdrant requires. The mapping is
// stable so re-ingesting a document replaces its points.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("arandu:"+id)).String()
}

// Upsert stores or replaces records. The original id and document travel in
// the payload next to the metadata.
func (c *qdrantCollection) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any, embeddings [][]float32) error {
	if err := checkAligned(ids, documents, metadatas, embeddings); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(ids))
	for i, id := range ids {
		payload := make(map[string]any, len(metadatas[i])+2)
		for k, v := range metadatas[i] {
			payload[k] = v
		}
		payload[payloadID] = id
		payload[payloadDocument] = documents[i]

		vectors := map[string]*qdrant.Vector{}
		if embeddings != nil && len(embeddings[i]) > 0 {
			vectors[denseVector] = qdrant.NewVectorDense(embeddings[i])
		}
		value, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("qdrant: payload for %q: %w", id, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(id)),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: value,
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", c.name, err)
	}
	return nil
}

// Query performs a cosine similarity search on the dense vector.
func (c *qdrantCollection) Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Hit, error) {
	limit := uint64(max(1, k))
	q := &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQueryDense(embedding),
		Using:          qdrant.PtrOf(denseVector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := qdrantFilter(filter); f != nil {
		q.Filter = f
	}
	results, err := c.client.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", c.name, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		h := Hit{ID: r.GetId().GetUuid(), Score: r.GetScore(), Metadata: make(map[string]any)}
		for k, v := range r.GetPayload() {
			switch k {
			case payloadID:
				h.ID = v.GetStringValue()
			case payloadDocument:
				h.Document = v.GetStringValue()
			default:
				h.Metadata[k] = fromValue(v)
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Delete removes the points whose payload matches filter.
func (c *qdrantCollection) Delete(ctx context.Context, filter Filter) error {
	f := qdrantFilter(filter)
	if f == nil {
		return ErrEmptyFilter
	}
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete from %q failed: %w", c.name, err)
	}
	return nil
}

func qdrantFilter(f Filter) *qdrant.Filter {
	if len(f) == 0 {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(f))
	for k, v := range f {
		switch x := v.(type) {
		case string:
			conds = append(conds, qdrant.NewMatch(k, x))
		case int:
			conds = append(conds, qdrant.NewMatchInt(k, int64(x)))
		case int64:
			conds = append(conds, qdrant.NewMatchInt(k, x))
		case bool:
			conds = append(conds, qdrant.NewMatchBool(k, x))
		default:
			conds = append(conds, qdrant.NewMatch(k, fmt.Sprint(x)))
		}
	}
	return &qdrant.Filter{Must: conds}
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}
