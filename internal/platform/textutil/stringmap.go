package textutil

import "strings"

// NormalizeStringMap returns a copy of values with keys and values trimmed.
// Entries whose trimmed key is empty are dropped, and a map with nothing left
// normalizes to nil.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
