package ingest

import (
	"encoding/json"
	"fmt"
	"math"
)

// Sanitize returns a copy of md holding only values every vector store
// backend accepts as payload: strings, ints, floats and bools. Other values
// are encoded as JSON strings; nil, NaN and infinities are dropped.
// Sanitize(Sanitize(md)) equals Sanitize(md).
func Sanitize(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		if s, ok := scalar(v); ok {
			out[k] = s
		}
	}
	return out
}

func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string, bool, int, int64:
		return x, true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		return unsigned(uint64(x))
	case uint64:
		return unsigned(x)
	case float32:
		return finite(float64(x))
	case float64:
		return finite(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return finite(f)
		}
		return x.String(), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x), true
		}
		return string(b), true
	}
}

func finite(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func unsigned(u uint64) (any, bool) {
	if u > math.MaxInt64 {
		return float64(u), true
	}
	return int64(u), true
}
