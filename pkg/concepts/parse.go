package concepts

import (
	"encoding/json"
	"strings"
)

// ParseConcepts pulls a JSON list out of a model reply that may carry prose around it.
// Labels are trimmed and lower-cased; empty and non-string entries are dropped.
// ok is false when the reply holds no parseable list.
func ParseConcepts(reply string) (labels []string, ok bool) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start == -1 || end < start {
		return []string{}, false
	}

	var raw []any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return []string{}, false
	}

	labels = make([]string, 0, len(raw))
	for _, item := range raw {
		s, isString := item.(string)
		if !isString {
			continue
		}
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			labels = append(labels, s)
		}
	}
	return labels, true
}
