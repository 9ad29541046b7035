package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReservedProps are property names owned by the node manager. User-supplied
// dynamic properties must never overwrite them, and the dynamic index
// discovery skips them.
var ReservedProps = map[string]bool{
	"uuid":               true,
	"name":               true,
	"normalized_name":    true,
	"label":              true,
	"content":            true,
	"chunk_number":       true,
	"source_description": true,
	"price":              true,
	"sku":                true,
	"category":           true,
	"content_embedding":  true,
	"name_embedding":     true,
	"fact_embedding":     true,
	"created_at":         true,
	"updated_at":         true,
	"last_seen_at":       true,
	"mention_count":      true,
}

// NormalizeProps converts an arbitrary user metadata bag into store-safe
// values: nested maps become JSON strings, times become RFC3339 strings,
// lists are normalized element-wise, unsupported scalars are stringified.
// Reserved keys are dropped.
func NormalizeProps(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == "" || ReservedProps[k] {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	case []string:
		return t
	case []int:
		return t
	case []float64:
		return t
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			out = append(out, normalizeValue(el))
		}
		return out
	default:
		return fmt.Sprint(t)
	}
}
