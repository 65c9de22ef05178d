package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed models.schema.json
var modelsSchemaJSON []byte

const modelsSchemaURL = "mem://arandu/models.schema.json"

// fallbackLLMAlias is tried for metadata completion when neither the retrieval
// block nor the defaults name an LLM.
const fallbackLLMAlias = "llama3-instruct"

// Models is the model registry: embedding and LLM aliases plus the retrieval
// parameters used during ingest.
type Models struct {
	// Embeddings lists the embedding models addressable by alias.
	Embeddings []EmbeddingModel `json:"embeddings"`
	// LLMs lists the chat/generation models addressable by alias. The file may
	// hold a list or an object keyed by alias.
	LLMs LLMList `json:"llms"`
	// LegacyAliases remaps retired alias names onto current ones.
	LegacyAliases map[string]string `json:"legacy_aliases,omitempty"`
	// Retrieval holds chunking and embedding parameters.
	Retrieval Retrieval `json:"retrieval"`
	// Defaults holds registry-wide fallbacks.
	Defaults Defaults `json:"defaults"`
}

// EmbeddingModel describes one embedding alias.
type EmbeddingModel struct {
	Alias string `json:"alias"`
	// Provider is ollama or openai.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model"`
	// Dim is the expected vector size; 0 means unknown.
	Dim       int    `json:"dim,omitempty"`
	Normalize bool   `json:"normalize,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
}

// LLMModel describes one LLM alias.
type LLMModel struct {
	Alias string `json:"alias"`
	// Provider is ollama, openai, azure, ark or gemini.
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model"`
	BaseURL     string         `json:"base_url,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float32       `json:"temperature,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// LLMList accepts either a JSON array of LLM entries or an object keyed by alias.
type LLMList []LLMModel

// UnmarshalJSON decodes the list form first, then the keyed-object form.
func (l *LLMList) UnmarshalJSON(data []byte) error {
	var list []LLMModel
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var keyed map[string]LLMModel
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("llms: want a list or an object keyed by alias: %w", err)
	}
	aliases := make([]string, 0, len(keyed))
	for a := range keyed {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	out := make([]LLMModel, 0, len(keyed))
	for _, a := range aliases {
		m := keyed[a]
		if m.Alias == "" {
			m.Alias = a
		}
		out = append(out, m)
	}
	*l = out
	return nil
}

// Retrieval holds the chunking and embedding parameters of an ingest.
type Retrieval struct {
	DefaultCollection       string   `json:"default_collection"`
	TopKDefault             int      `json:"top_k_default"`
	ChildChunkSize          int      `json:"child_chunk_size"`
	ChildChunkOverlap       int      `json:"child_chunk_overlap"`
	ParentGroupSize         int      `json:"parent_group_size"`
	ParentGroupOverlap      int      `json:"parent_group_overlap"`
	MinChunkChars           int      `json:"min_chunk_chars"`
	MaxCharsPerEmbedding    int      `json:"max_chars_per_embedding"`
	EmbeddingAgg            string   `json:"embedding_agg"`
	EmbeddingAliasDefault   string   `json:"embedding_alias_default"`
	EmbeddingAliasFallbacks []string `json:"embedding_alias_fallbacks"`
	MetadataLLMAlias        string   `json:"metadata_llm_alias,omitempty"`
}

// Defaults holds registry-wide defaults.
type Defaults struct {
	LLMAlias string `json:"llm_alias,omitempty"`
}

// DefaultRetrieval returns the retrieval parameters applied when the registry
// omits a key.
func DefaultRetrieval() Retrieval {
	return Retrieval{
		DefaultCollection:       "bachelor",
		TopKDefault:             5,
		ChildChunkSize:          1200,
		ChildChunkOverlap:       200,
		ParentGroupSize:         3,
		ParentGroupOverlap:      1,
		MinChunkChars:           20,
		MaxCharsPerEmbedding:    2000,
		EmbeddingAgg:            "mean",
		EmbeddingAliasDefault:   "nomic",
		EmbeddingAliasFallbacks: []string{"mxbai", "jina-de"},
	}
}

// LoadModels reads, schema-validates and decodes the registry at path.
// Absent retrieval keys keep their [DefaultRetrieval] values.
func LoadModels(path string) (*Models, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read model registry %s: %w", path, err)
	}
	return ParseModels(data)
}

// ParseModels validates data against the embedded schema and decodes it.
func ParseModels(data []byte) (*Models, error) {
	schema, err := compileModelsSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: model registry is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("config: model registry: %w", err)
	}

	m := &Models{Retrieval: DefaultRetrieval()}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("config: decode model registry: %w", err)
	}
	return m, m.Validate()
}

func compileModelsSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(modelsSchemaURL, bytes.NewReader(modelsSchemaJSON)); err != nil {
		return nil, fmt.Errorf("config: load models schema: %w", err)
	}
	s, err := c.Compile(modelsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("config: compile models schema: %w", err)
	}
	return s, nil
}

// Validate checks the cross-references the schema cannot express.
func (m *Models) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for _, e := range m.Embeddings {
		if seen[e.Alias] {
			errs = append(errs, fmt.Errorf("config: duplicate embedding alias %q", e.Alias))
		}
		seen[e.Alias] = true
	}
	r := m.Retrieval
	if _, ok := m.Embedding(r.EmbeddingAliasDefault); !ok {
		errs = append(errs, fmt.Errorf("config: embedding_alias_default %q is not a registered embedding alias", r.EmbeddingAliasDefault))
	}
	if r.ChildChunkSize > 0 && (r.ChildChunkOverlap < 0 || r.ChildChunkOverlap >= r.ChildChunkSize) {
		errs = append(errs, fmt.Errorf("config: child_chunk_overlap %d must satisfy 0 <= overlap < child_chunk_size %d", r.ChildChunkOverlap, r.ChildChunkSize))
	}
	if r.EmbeddingAgg != "mean" && r.EmbeddingAgg != "sum" {
		errs = append(errs, fmt.Errorf("config: embedding_agg %q must be mean or sum", r.EmbeddingAgg))
	}
	return errors.Join(errs...)
}

// Embedding returns the embedding model registered under alias, applying the
// legacy alias map first.
func (m *Models) Embedding(alias string) (EmbeddingModel, bool) {
	alias = m.canonical(alias)
	for _, e := range m.Embeddings {
		if e.Alias == alias {
			return e, true
		}
	}
	return EmbeddingModel{}, false
}

// LLM returns the LLM registered under alias, applying the legacy alias map first.
func (m *Models) LLM(alias string) (LLMModel, bool) {
	alias = m.canonical(alias)
	for _, l := range m.LLMs {
		if l.Alias == alias {
			return l, true
		}
	}
	return LLMModel{}, false
}

// MetadataLLM picks the model used to complete missing metadata. Resolution
// order: retrieval.metadata_llm_alias, defaults.llm_alias, "llama3-instruct",
// then the first registered LLM. Each candidate passes through the legacy
// alias map.
func (m *Models) MetadataLLM() (LLMModel, error) {
	for _, alias := range []string{m.Retrieval.MetadataLLMAlias, m.Defaults.LLMAlias, fallbackLLMAlias} {
		if alias == "" {
			continue
		}
		if l, ok := m.LLM(alias); ok {
			return l, nil
		}
	}
	if len(m.LLMs) > 0 {
		return m.LLMs[0], nil
	}
	return LLMModel{}, errors.New("config: no LLMs registered")
}

// EmbeddingAliases returns the primary alias followed by the fallbacks, with
// duplicates removed.
func (m *Models) EmbeddingAliases() []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range append([]string{m.Retrieval.EmbeddingAliasDefault}, m.Retrieval.EmbeddingAliasFallbacks...) {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func (m *Models) canonical(alias string) string {
	if to, ok := m.LegacyAliases[alias]; ok && to != "" {
		return to
	}
	return alias
}
