// Package data loads CSV and JSON data files and selects rows by cycle.
package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Mode defines how a cycle is mapped to a row.
type Mode string

const (
	// ModeSequential maps cycle n to row n modulo the row count.
	ModeSequential Mode = "sequential"
	// ModeHashed maps cycle n to a row chosen by a hash of n. The choice is
	// stable across runs.
	ModeHashed Mode = "hashed"
)

// ParseMode maps a mode name to a Mode. An empty name is ModeSequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeHashed, "random":
		return ModeHashed, nil
	}
	return "", fmt.Errorf("unknown data mode %q (use sequential or hashed)", s)
}

// Source is a loaded data file. It is immutable and safe for concurrent use.
type Source struct {
	name string
	rows []map[string]any
	mode Mode
}

// NewSource creates a data source from loaded rows.
func NewSource(name string, rows []map[string]any, mode Mode) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	return &Source{name: name, rows: rows, mode: mode}
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Len returns the number of rows.
func (s *Source) Len() int {
	return len(s.rows)
}

// Mode returns the row selection mode.
func (s *Source) Mode() Mode {
	return s.mode
}

// At returns a copy of the row for cycle.
func (s *Source) At(cycle int64) map[string]any {
	row := s.row(cycle)
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Field returns one field of the row for cycle.
func (s *Source) Field(cycle int64, field string) (any, bool) {
	v, ok := s.row(cycle)[field]
	return v, ok
}

func (s *Source) row(cycle int64) map[string]any {
	if len(s.rows) == 0 {
		return nil
	}
	u := uint64(cycle)
	if s.mode == ModeHashed {
		u = Mix(u)
	}
	return s.rows[u%uint64(len(s.rows))]
}

// Mix is the splitmix64 finalizer.
func Mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// LoadFile loads a data file (CSV or JSON) and returns a Source.
func LoadFile(name, path string, mode Mode, baseDir string) (*Source, error) {
	// Resolve relative paths against the session file directory
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var rows []map[string]any
	var err error

	switch ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv or .json)", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s is empty", path)
	}

	return NewSource(name, rows, mode), nil
}

// loadCSV loads a CSV file. First row is headers, subsequent rows are data.
func loadCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make([]map[string]any, 0, len(records)-1)

	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// loadJSON loads a JSON file. Must be an array of objects.
func loadJSON(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}

	return rows, nil
}

// Cache loads each file once and shares the rows between sources that use
// different modes.
type Cache struct {
	mu   sync.Mutex
	rows map[string][]map[string]any
	base string
}

// NewCache returns a cache resolving relative paths against baseDir.
func NewCache(baseDir string) *Cache {
	return &Cache{rows: make(map[string][]map[string]any), base: baseDir}
}

// Load returns a source for path with the given mode.
func (c *Cache) Load(path string, mode Mode) (*Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rows, ok := c.rows[path]; ok {
		return NewSource(path, rows, mode), nil
	}
	src, err := LoadFile(path, path, mode, c.base)
	if err != nil {
		return nil, err
	}
	c.rows[path] = src.rows
	return src, nil
}
