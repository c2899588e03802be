package graph

import (
	"encoding/json"
	"strconv"
)

// Argument values arrive from literals (int64, string, bool) or from JSON
// variables (json.Number, float64, []interface{}), so readers accept both.

func argString(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func argOptString(args map[string]interface{}, name string) *string {
	s, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func argOptBool(args map[string]interface{}, name string) *bool {
	b, ok := args[name].(bool)
	if !ok {
		return nil
	}
	return &b
}

func argInt(args map[string]interface{}, name string, def int) int {
	switch n := args[name].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// argStrings returns nil when the argument is absent or null and a non-nil
// slice, possibly empty, when a list was given.
func argStrings(args map[string]interface{}, name string) []string {
	switch v := args[name].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

func argObject(args map[string]interface{}, name string) map[string]interface{} {
	m, _ := args[name].(map[string]interface{})
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
