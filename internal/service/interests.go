package service

import (
	"encoding/json"
	"strings"

	"github.com/sakif/friendship-plus/internal/apperror"
)

// NormalizeInterests turns any of the accepted interest encodings into one
// set representation:
//
//	[]string{"a", "b"}    structured list (also []any from a decoded JSON body)
//	`["a", "b"]`          JSON-encoded list as text
//	"a, b"                comma-separated text
//
// Elements are trimmed, empties are dropped and duplicates keep their first
// position. A nil input means "not supplied" and yields nil; every other
// accepted input yields a non-nil slice, possibly empty.
func NormalizeInterests(raw any) ([]string, error) {
	var items []string

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, invalidInterests()
			}
			items = append(items, s)
		}
	case string:
		text := strings.TrimSpace(v)
		if strings.HasPrefix(text, "[") {
			if err := json.Unmarshal([]byte(text), &items); err != nil {
				return nil, invalidInterests()
			}
		} else {
			items = strings.Split(text, ",")
		}
	default:
		return nil, invalidInterests()
	}

	seen := make(map[string]struct{}, len(items))
	set := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		set = append(set, item)
	}
	return set, nil
}

func invalidInterests() error {
	return apperror.ValidationFailed("interests",
		"interests must be a list of strings, a JSON array or comma-separated text")
}
