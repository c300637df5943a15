package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a reply carries no JSON value.
var ErrNoJSON = errors.New("llm: reply contains no JSON")

// DecodeJSON extracts the JSON value from a model reply. Markdown code
// fences and prose around the first array or object are tolerated.
func DecodeJSON(reply string) (any, error) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return nil, ErrNoJSON
	}
	dec := json.NewDecoder(strings.NewReader(s[start:]))
	if err := dec.Decode(&v); err != nil {
		return nil, ErrNoJSON
	}
	return v, nil
}
