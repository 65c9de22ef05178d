package embedder

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Aggregation modes for the slice vectors of one long text.
const (
	AggMean = "mean"
	AggSum  = "sum"
)

// Client embeds texts with one model alias. A failed text gets an empty
// vector; Client never returns backend errors.
type Client struct {
	backend   Backend
	alias     string
	model     string
	dim       int
	normalize bool

	maxChars    int
	agg         string
	concurrency int
	limiter     *rate.Limiter
	log         *slog.Logger
}

// ClientConfig holds the settings for constructing a Client.
type ClientConfig struct {
	Alias     string
	Model     string
	Dim       int
	Normalize bool
	// MaxChars is the slice length for long texts; 0 disables slicing.
	MaxChars int
	// Agg is AggMean or AggSum.
	Agg string
	// Concurrency bounds the parallel requests; values below 1 mean 1.
	Concurrency int
	// Limiter throttles requests when non-nil.
	Limiter *rate.Limiter
}

// NewClient returns a Client over backend.
func NewClient(backend Backend, cfg ClientConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.Agg == "" {
		cfg.Agg = AggMean
	}
	return &Client{
		backend:     backend,
		alias:       cfg.Alias,
		model:       cfg.Model,
		dim:         cfg.Dim,
		normalize:   cfg.Normalize,
		maxChars:    cfg.MaxChars,
		agg:         cfg.Agg,
		concurrency: max(1, cfg.Concurrency),
		limiter:     cfg.Limiter,
		log:         log.With(slog.String("alias", cfg.Alias), slog.String("model", cfg.Model)),
	}
}

// Alias returns the registry alias the client embeds with.
func (c *Client) Alias() string { return c.alias }

// Model returns the backend model name.
func (c *Client) Model() string { return c.model }

// Dim returns the configured dimension, 0 if unknown.
func (c *Client) Dim() int { return c.dim }

// Normalize reports whether vectors are L2-normalized.
func (c *Client) Normalize() bool { return c.normalize }

// EmbedTexts embeds every text and returns vectors in input order. Texts run
// in parallel up to the configured concurrency. The error is non-nil only
// when ctx ends.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, t := range texts {
		g.Go(func() error {
			out[i] = c.embedLong(gctx, t)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedLong slices texts longer than maxChars runes and aggregates the slice
// vectors. Every slice is awaited before aggregating.
func (c *Client) embedLong(ctx context.Context, text string) []float32 {
	runes := []rune(text)
	if c.maxChars <= 0 || len(runes) <= c.maxChars {
		return c.finish(c.embedOne(ctx, text))
	}

	var subs [][]float32
	for s := 0; s < len(runes); s += c.maxChars {
		e := min(len(runes), s+c.maxChars)
		subs = append(subs, c.embedOne(ctx, string(runes[s:e])))
	}
	v := Aggregate(subs, c.agg)
	if len(v) == 0 {
		lens := make([]int, len(subs))
		for i, sv := range subs {
			lens[i] = len(sv)
		}
		c.log.Warn("aggregated embedding empty", slog.Int("parts", len(subs)), slog.Any("sub_vec_lens", lens))
	}
	return c.finish(v)
}

// embedOne sends text under "prompt" and, if a well-formed response carries
// no vector, once more under "input". Transport, status and decode failures
// are logged and produce nil without a retry.
func (c *Client) embedOne(ctx context.Context, text string) []float32 {
	v, ok := c.request(ctx, Request{Prompt: text}, "prompt")
	if !ok || len(v) > 0 {
		return v
	}
	v, _ = c.request(ctx, Request{Input: text}, "input")
	if len(v) == 0 {
		c.log.Warn("empty embedding", slog.Int("len_text", len([]rune(text))))
	}
	return v
}

func (c *Client) request(ctx context.Context, r Request, phase string) ([]float32, bool) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false
		}
	}
	vs, err := c.backend.Embed(ctx, c.model, r)
	if err != nil {
		c.log.Error("embedding request failed", slog.String("phase", phase), slog.String("error", err.Error()))
		return nil, false
	}
	return first(vs), true
}

// finish applies the dimension check and optional normalization.
func (c *Client) finish(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	if c.dim > 0 && len(v) != c.dim {
		c.log.Warn("embedding dimension mismatch", slog.Int("want", c.dim), slog.Int("got", len(v)))
		return nil
	}
	if c.normalize {
		return l2Normalize(v)
	}
	return v
}

// Aggregate combines equally sized vectors by mean or sum. An empty input,
// an empty member or differing lengths produce nil.
func Aggregate(vs [][]float32, mode string) []float32 {
	if len(vs) == 0 || len(vs[0]) == 0 {
		return nil
	}
	n := len(vs[0])
	acc := make([]float64, n)
	for _, v := range vs {
		if len(v) != n {
			return nil
		}
		for i, x := range v {
			acc[i] += float64(x)
		}
	}
	out := make([]float32, n)
	for i, x := range acc {
		if mode == AggSum {
			out[i] = float32(x)
		} else {
			out[i] = float32(x / float64(len(vs)))
		}
	}
	return out
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
