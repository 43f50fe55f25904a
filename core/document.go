package core

import (
	"strconv"
	"strings"
)

// Document is the generic structured payload stored alongside a record.
type Document = map[string]any

// Lookup resolves a dot-separated path against a nested document. Numeric
// segments index into lists. Returns false when any segment is missing.
func Lookup(doc any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	current := doc
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, false
		}
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}
			current = typed[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// LookupString resolves a path and trims the value when it is a string.
// Non-string scalars resolve to false.
func LookupString(doc any, path string) (string, bool) {
	value, ok := Lookup(doc, path)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	if !ok {
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}
