// Package template implements the Step Interpreter's (C9) template
// substitution and condition parsing, per spec.md §4.9: `{{path.with.dots}}`
// references resolved against trigger_data by dotted traversal via
// tidwall/gjson.
package template

import (
	"encoding/json"
	"regexp"
)

var refPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_.]+)\}\}`)

// Substitute replaces every {{path}} reference in s with its stringified
// value from data. A reference whose path has no value is left in place
// as the literal "{{path}}" — spec.md §8's testable property 6.
func Substitute(s string, data map[string]any) string {
	if s == "" {
		return s
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := refPattern.FindStringSubmatch(match)
		value, ok := resolveRaw(raw, sub[1])
		if !ok {
			return match
		}
		return value
	})
}

// Resolve returns the stringified value at path within data, and whether
// the path resolved to a defined value.
func Resolve(path string, data map[string]any) (string, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", false
	}
	return resolveRaw(raw, path)
}
