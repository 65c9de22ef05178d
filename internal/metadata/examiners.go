package metadata

import "strings"

// Examiner is a registry entry: the preferred spelling and known variants.
type Examiner struct {
	Name     string
	Variants []string
}

// Registry canonicalizes examiner names against a list of known examiners.
// A nil *Registry matches nothing.
type Registry struct {
	// index maps a lower-cased normalized spelling to the preferred name.
	index map[string]string
}

// NewRegistry indexes examiners by their normalized name and variants. When
// two entries claim the same spelling the first one wins.
func NewRegistry(examiners []Examiner) *Registry {
	r := &Registry{index: make(map[string]string)}
	add := func(spelling, name string) {
		key := strings.ToLower(NormalizePersonName(spelling))
		if key == "" {
			return
		}
		if _, ok := r.index[key]; !ok {
			r.index[key] = name
		}
	}
	for _, e := range examiners {
		add(e.Name, e.Name)
		for _, v := range e.Variants {
			add(v, e.Name)
		}
	}
	return r
}

// Match normalizes raw and returns the registry's preferred spelling when the
// name or one of its variants matches case-insensitively. Unmatched names are
// returned normalized.
func (r *Registry) Match(raw string) string {
	norm := NormalizePersonName(raw)
	if r == nil {
		return norm
	}
	if name, ok := r.index[strings.ToLower(norm)]; ok {
		return name
	}
	return norm
}

// Len returns the number of indexed spellings.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.index)
}
