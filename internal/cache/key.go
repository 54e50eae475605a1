package cache

import (
	"encoding/json"
	"strings"
)

// Key builds a canonical cache key from a tool name and its input so that
// equivalent requests hit the same entry. Map keys are ordered by
// json.Marshal; string scalars are trimmed and lowercased so inputs like
// "London" and " london " canonicalize identically.
func Key(tool string, input map[string]any) string {
	data, err := json.Marshal(normalize(input))
	if err != nil {
		// Unmarshalable inputs are uncacheable; callers skip empty keys.
		return ""
	}
	return tool + ":" + string(data)
}

func normalize(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
