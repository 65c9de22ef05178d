package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrMisaligned is returned when the parallel input slices differ in length.
var ErrMisaligned = errors.New("embedder: misaligned input")

// Attempt outcomes reported to Resolver.OnAttempt.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeAveraged = "averaged"
)

// ClientSource builds a Client for a registry alias.
type ClientSource interface {
	Client(alias string) (*Client, error)
}

// Input is the parent batch to embed plus the child data needed for the
// averaging fallback. Texts, IDs and Metadatas are parallel, as are
// ChildTexts and ChildIndices. ParentChildIndices[i] lists the child index
// values grouped into parent i.
type Input struct {
	Texts     []string
	IDs       []string
	Metadatas []map[string]any

	ChildTexts         []string
	ChildIndices       []int
	ParentChildIndices [][]int
}

// Resolution is the outcome of the cascade. Vectors, Texts, IDs and
// Metadatas are parallel and hold only tuples with a non-empty vector.
type Resolution struct {
	Vectors   [][]float32
	Texts     []string
	IDs       []string
	Metadatas []map[string]any

	AliasUsed string
	Model     string
	Dim       int
	Normalize bool
	Tried     []string
	// Averaged is set when parent vectors were derived from child vectors.
	Averaged bool
	// AllEmpty is set when no tuple received a vector.
	AllEmpty bool
}

// Resolver walks an ordered alias list until one produces vectors, then
// falls back to averaging child vectors.
type Resolver struct {
	clients ClientSource
	aliases []string
	log     *slog.Logger

	// OnAttempt, when set, is called once per alias attempt.
	OnAttempt func(alias, outcome string)
}

// NewResolver returns a Resolver trying aliases in order.
func NewResolver(clients ClientSource, aliases []string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{clients: clients, aliases: aliases, log: log}
}

func (r *Resolver) observe(alias, outcome string) {
	if r.OnAttempt != nil {
		r.OnAttempt(alias, outcome)
	}
}

// Resolve embeds in.Texts. Backend failures never surface as errors; the
// returned error is ErrMisaligned or the context's error.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Resolution, error) {
	if err := in.check(); err != nil {
		return Resolution{}, err
	}

	var res Resolution
	var last *Client
	for _, alias := range r.aliases {
		res.Tried = append(res.Tried, alias)
		cl, err := r.clients.Client(alias)
		if err != nil {
			r.log.Error("embedding alias unavailable", slog.String("alias", alias), slog.String("error", err.Error()))
			r.observe(alias, OutcomeError)
			continue
		}
		last = cl
		r.log.Info("embedding parents", slog.String("alias", alias), slog.Int("count", len(in.Texts)))

		vecs, err := cl.EmbedTexts(ctx, in.Texts)
		if err != nil {
			return Resolution{}, err
		}
		if countNonEmpty(vecs) > 0 {
			r.observe(alias, OutcomeOK)
			res.keep(in, vecs, cl)
			if dropped := len(in.Texts) - len(res.Vectors); dropped > 0 {
				r.log.Info("empty parent embeddings removed",
					slog.String("alias", alias),
					slog.Int("dropped", dropped),
					slog.Int("remaining", len(res.Vectors)),
				)
			}
			return res, nil
		}
		r.observe(alias, OutcomeEmpty)
		r.log.Warn("embedding alias returned only empty vectors", slog.String("alias", alias))
	}

	if last == nil {
		res.AllEmpty = true
		return res, nil
	}

	vecs, err := r.average(ctx, last, in)
	if err != nil {
		return Resolution{}, err
	}
	res.Averaged = true
	res.keep(in, vecs, last)
	if res.AllEmpty {
		r.log.Error("embedding exhausted", slog.Any("tried", res.Tried))
	} else {
		r.observe(last.Alias(), OutcomeAveraged)
	}
	return res, nil
}

// average embeds the children with cl and averages each parent's member
// vectors. Members that are unknown or empty are skipped.
func (r *Resolver) average(ctx context.Context, cl *Client, in Input) ([][]float32, error) {
	r.log.Warn("averaging child embeddings", slog.String("alias", cl.Alias()), slog.Int("children", len(in.ChildTexts)))
	childVecs, err := cl.EmbedTexts(ctx, in.ChildTexts)
	if err != nil {
		return nil, err
	}
	pos := make(map[int]int, len(in.ChildIndices))
	for i, ci := range in.ChildIndices {
		pos[ci] = i
	}
	out := make([][]float32, len(in.Texts))
	for p, members := range in.ParentChildIndices {
		var subs [][]float32
		for _, ci := range members {
			i, ok := pos[ci]
			if !ok || len(childVecs[i]) == 0 {
				continue
			}
			subs = append(subs, childVecs[i])
		}
		out[p] = cl.finish(Aggregate(subs, AggMean))
	}
	return out, nil
}

// keep copies the tuples with a non-empty vector, in order.
func (res *Resolution) keep(in Input, vecs [][]float32, cl *Client) {
	res.AliasUsed = cl.Alias()
	res.Model = cl.Model()
	res.Dim = cl.Dim()
	res.Normalize = cl.Normalize()
	res.Vectors, res.Texts, res.IDs, res.Metadatas = nil, nil, nil, nil
	for i, v := range vecs {
		if len(v) == 0 {
			continue
		}
		res.Vectors = append(res.Vectors, v)
		res.Texts = append(res.Texts, in.Texts[i])
		res.IDs = append(res.IDs, in.IDs[i])
		res.Metadatas = append(res.Metadatas, in.Metadatas[i])
	}
	if res.Dim == 0 && len(res.Vectors) > 0 {
		res.Dim = len(res.Vectors[0])
	}
	res.AllEmpty = len(res.Vectors) == 0
}

func (in Input) check() error {
	n := len(in.Texts)
	if len(in.IDs) != n || len(in.Metadatas) != n || len(in.ParentChildIndices) != n {
		return fmt.Errorf("%w: %d texts, %d ids, %d metadatas, %d parent groups",
			ErrMisaligned, n, len(in.IDs), len(in.Metadatas), len(in.ParentChildIndices))
	}
	if len(in.ChildTexts) != len(in.ChildIndices) {
		return fmt.Errorf("%w: %d child texts, %d child indices", ErrMisaligned, len(in.ChildTexts), len(in.ChildIndices))
	}
	return nil
}

func countNonEmpty(vs [][]float32) int {
	n := 0
	for _, v := range vs {
		if len(v) > 0 {
			n++
		}
	}
	return n
}
