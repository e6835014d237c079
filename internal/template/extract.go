package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a body is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON in response body")

// Extract extracts values from JSON using JSONPath expressions.
// Paths use JSONPath syntax ($.foo.bar) which is converted to gjson format.
// Array access: $.items[0].id -> items.0.id
// Every failed rule is reported.
func Extract(body []byte, rules map[string]string) (map[string]any, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}

	result := make(map[string]any, len(rules))
	var errs []error

	for name, jsonPath := range rules {
		value := gjson.GetBytes(body, convertJSONPath(jsonPath))
		if !value.Exists() {
			errs = append(errs, fmt.Errorf("path %q not found for %q", jsonPath, name))
			continue
		}
		result[name] = value.Value()
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// Expect checks that every JSONPath in paths exists in body.
func Expect(body []byte, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return ErrInvalidJSON
	}
	var errs []error
	for _, p := range paths {
		if !gjson.GetBytes(body, convertJSONPath(p)).Exists() {
			errs = append(errs, fmt.Errorf("expected path %q not in response", p))
		}
	}
	return errors.Join(errs...)
}

// convertJSONPath converts JSONPath syntax to gjson path format.
// $.foo.bar -> foo.bar
// $.items[0].id -> items.0.id
// $.data[*].name -> data.#.name
func convertJSONPath(path string) string {
	if strings.HasPrefix(path, "$.") {
		path = path[2:]
	} else if strings.HasPrefix(path, "$") {
		path = path[1:]
	}

	var result strings.Builder
	i := 0
	for i < len(path) {
		if path[i] == '[' {
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				content := path[i+1 : j]
				if content == "*" {
					result.WriteString(".#")
				} else {
					result.WriteByte('.')
					result.WriteString(content)
				}
				i = j + 1
				continue
			}
		}
		result.WriteByte(path[i])
		i++
	}

	return result.String()
}
