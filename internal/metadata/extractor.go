package metadata

import (
	"context"
	"log/slog"
	"strings"
)

// Extractor runs the heuristic strategies over first-page text and, when
// configured, asks an LLM for the fields they could not resolve.
type Extractor struct {
	labels     *labelMatcher
	strategies []Strategy
	registry   *Registry
	fallback   *Fallback
	log        *slog.Logger
}

// Option configures an Extractor.
type Option func(*extractorOptions)

type extractorOptions struct {
	labels   LabelSet
	fallback *Fallback
}

// WithLabels adds label patterns on top of DefaultLabels.
func WithLabels(extra LabelSet) Option {
	return func(o *extractorOptions) { o.labels = o.labels.Merge(extra) }
}

// WithFallback enables the LLM fallback for fields left empty by the
// heuristics.
func WithFallback(f *Fallback) Option {
	return func(o *extractorOptions) { o.fallback = f }
}

// NewExtractor builds an Extractor. reg canonicalizes examiner names and may
// be nil.
func NewExtractor(reg *Registry, log *slog.Logger, opts ...Option) (*Extractor, error) {
	o := extractorOptions{labels: DefaultLabels}
	for _, opt := range opts {
		opt(&o)
	}
	lm, err := compileLabels(o.labels)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Extractor{
		labels:     lm,
		strategies: defaultStrategies(lm),
		registry:   reg,
		fallback:   o.fallback,
		log:        log,
	}, nil
}

// Extract resolves the required fields from pageOne. It never fails: fields
// nothing could resolve stay empty and are listed in Result.Missing.
func (e *Extractor) Extract(ctx context.Context, pageOne string) Result {
	res := e.Heuristic(pageOne)
	if len(res.Missing) == 0 || e.fallback == nil {
		return res
	}

	res.Used = append(res.Used, "llm")
	filled := 0
	for k, v := range e.fallback.Fill(ctx, pageOne, res.Missing) {
		if res.Fields[k] != "" {
			continue
		}
		if e.assign(res.Fields, k, v) {
			res.Confidence[k] = max(res.Confidence[k], confLLM)
			filled++
		}
	}
	if filled > 0 {
		res.Source = SourceRegexLLM
	}
	res.Missing = res.Fields.Missing()
	e.log.Info("metadata llm fallback",
		slog.Int("filled", filled),
		slog.Any("missing", res.Missing),
	)
	return res
}

// Heuristic runs the strategy list only.
func (e *Extractor) Heuristic(pageOne string) Result {
	p := newPage(pageOne)
	fields := NewFields()
	conf := make(Confidence, len(Required))
	for _, k := range Required {
		conf[k] = 0
	}

	for _, s := range e.strategies {
		if s.Field != "" && fields[s.Field] != "" {
			continue
		}
		for _, c := range s.Match(p) {
			if fields[c.Field] != "" {
				continue
			}
			if e.assign(fields, c.Field, c.Value) {
				conf[c.Field] = max(conf[c.Field], c.Confidence)
				e.log.Debug("metadata field resolved",
					slog.String("field", c.Field),
					slog.String("strategy", s.Name),
				)
			}
		}
	}

	return Result{
		Fields:     fields,
		Confidence: conf,
		Source:     SourceRegex,
		Used:       []string{"regex"},
		Missing:    fields.Missing(),
	}
}

// assign normalizes v for field k and stores it. It reports whether a value
// was stored.
func (e *Extractor) assign(f Fields, k, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	switch k {
	case SubmissionDate:
		if iso := ISODate(v); iso != "" {
			v = iso
		}
	case MatriculationNumber:
		d := digitsOnly(v)
		if len(d) < 5 || len(d) > 12 {
			return false
		}
		v = d
	case StudentName:
		v = NormalizePersonName(v)
	case ExaminerFirst, ExaminerSecond:
		v = NormalizePersonName(e.registry.Match(v))
	}
	if v == "" {
		return false
	}
	f[k] = v
	return true
}
