package metadata

import (
	"encoding/json"
	"strings"
)

// reserved keys of the nested metadata shape that are not fields.
var reserved = map[string]bool{
	"metadata": true, "confidence": true, "source": true, "metadata_source": true,
}

// Map returns r in the nested shape accepted by Flatten.
func (r Result) Map() map[string]any {
	md := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		md[k] = v
	}
	conf := make(map[string]any, len(r.Confidence))
	for k, v := range r.Confidence {
		conf[k] = v
	}
	return map[string]any{"metadata": md, "confidence": conf, "source": r.Source}
}

// Flatten turns nested metadata into a flat field map. Non-empty outer values
// win over the inner "metadata" object, inner values fill the remaining gaps
// and string values are trimmed. Every required field is present in the
// result. Confidence and source are returned separately when present.
func Flatten(in map[string]any) (map[string]any, Confidence, string) {
	if in == nil {
		in = map[string]any{}
	}
	inner, _ := in["metadata"].(map[string]any)

	source, _ := in["source"].(string)
	if source == "" {
		source, _ = in["metadata_source"].(string)
	}
	conf := toConfidence(in["confidence"])

	final := make(map[string]any, len(Required)+len(in))
	for _, k := range Required {
		final[k] = pick(in[k], inner[k])
	}
	for k, v := range in {
		if reserved[k] {
			continue
		}
		final[k] = pick(v, inner[k])
	}
	for k, v := range inner {
		if isEmpty(final[k]) {
			final[k] = v
		}
	}
	for k, v := range final {
		if s, ok := v.(string); ok {
			final[k] = strings.TrimSpace(s)
		}
	}
	for _, k := range Required {
		if final[k] == nil {
			final[k] = ""
		}
	}
	return final, conf, source
}

// ApplyOverrides returns a copy of md with every non-empty override applied.
func ApplyOverrides(md, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(md)+len(overrides))
	for k, v := range md {
		out[k] = v
	}
	for k, v := range overrides {
		if isEmpty(v) {
			continue
		}
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out[k] = v
	}
	return out
}

// MissingRequired lists required fields that are absent or empty in md.
func MissingRequired(md map[string]any) []string {
	var out []string
	for _, k := range Required {
		if isEmpty(md[k]) {
			out = append(out, k)
		}
	}
	return out
}

// FieldsOf extracts the required fields of md as strings.
func FieldsOf(md map[string]any) Fields {
	f := NewFields()
	for _, k := range Required {
		switch v := md[k].(type) {
		case nil:
		case string:
			f[k] = v
		default:
			b, err := json.Marshal(v)
			if err == nil {
				f[k] = strings.Trim(string(b), `"`)
			}
		}
	}
	return f
}

func pick(outer, inner any) any {
	if !isEmpty(outer) {
		return outer
	}
	return inner
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func toConfidence(v any) Confidence {
	out := Confidence{}
	switch m := v.(type) {
	case Confidence:
		for k, f := range m {
			out[k] = f
		}
	case map[string]float64:
		for k, f := range m {
			out[k] = f
		}
	case map[string]any:
		for k, raw := range m {
			switch n := raw.(type) {
			case float64:
				out[k] = n
			case float32:
				out[k] = float64(n)
			case int:
				out[k] = float64(n)
			case json.Number:
				if f, err := n.Float64(); err == nil {
					out[k] = f
				}
			}
		}
	}
	return out
}
