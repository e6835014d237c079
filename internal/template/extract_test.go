package template

import (
	"errors"
	"strings"
	"testing"
)

const userBody = `{
  "user": {"id": 42, "name": "ada", "active": true},
  "items": [{"id": "a"}, {"id": "b"}]
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		path string
		want any
	}{
		{"$.user.name", "ada"},
		{"$.user.id", float64(42)},
		{"$.user.active", true},
		{"$.items[1].id", "b"},
		{"user.name", "ada"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, err := Extract([]byte(userBody), map[string]string{"v": tc.path})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got["v"] != tc.want {
				t.Errorf("expected %v (%T), got %v (%T)", tc.want, tc.want, got["v"], got["v"])
			}
		})
	}
}

func TestExtract_Wildcard(t *testing.T) {
	got, err := Extract([]byte(userBody), map[string]string{"ids": "$.items[*].id"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, ok := got["ids"].([]any)
	if !ok || len(ids) != 2 || ids[0] != "a" {
		t.Errorf("unexpected wildcard result %v", got["ids"])
	}
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract([]byte(userBody), map[string]string{
		"a": "$.missing",
		"b": "$.user.nope",
		"c": "$.user.name",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{`"$.missing"`, `"$.user.nope"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %v", want, err)
		}
	}

	if _, err := Extract([]byte("not json"), map[string]string{"a": "$.x"}); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}

	got, err := Extract([]byte("not json"), nil)
	if err != nil || got != nil {
		t.Errorf("expected no rules to skip parsing, got %v, %v", got, err)
	}
}

func TestExpect(t *testing.T) {
	if err := Expect([]byte(userBody), "$.user.id", "$.items[0]"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Expect([]byte(userBody)); err != nil {
		t.Errorf("expected no paths to pass, got %v", err)
	}
	err := Expect([]byte(userBody), "$.user.id", "$.token")
	if err == nil || !strings.Contains(err.Error(), `"$.token"`) {
		t.Errorf("expected missing path error, got %v", err)
	}
	if err := Expect([]byte("<html>"), "$.a"); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestConvertJSONPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"$.foo.bar", "foo.bar"},
		{"$foo.bar", "foo.bar"},
		{"foo.bar", "foo.bar"},
		{"$.items[0].id", "items.0.id"},
		{"$.items[10].id", "items.10.id"},
		{"$.data[*].name", "data.#.name"},
		{"$", ""},
		{"$.broken[0", "broken[0"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result := convertJSONPath(tc.input)
			if result != tc.expected {
				t.Errorf("convertJSONPath(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func BenchmarkExpect(b *testing.B) {
	body := []byte(userBody)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Expect(body, "$.user.id")
	}
}
