package data

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "users.csv")

	content := `username,password,age
alice,secret1,25
bob,secret2,30
charlie,secret3,35`

	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadFile("users", csvPath, ModeSequential, "")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if src.Len() != 3 {
		t.Errorf("Len() = %d, want 3", src.Len())
	}

	// Cycles map to rows in order
	row1 := src.At(0)
	if row1["username"] != "alice" {
		t.Errorf("row1[username] = %v, want alice", row1["username"])
	}
	if row1["password"] != "secret1" {
		t.Errorf("row1[password] = %v, want secret1", row1["password"])
	}
	if row1["age"] != "25" {
		t.Errorf("row1[age] = %v, want 25", row1["age"])
	}

	if v, _ := src.Field(1, "username"); v != "bob" {
		t.Errorf("Field(1, username) = %v, want bob", v)
	}
	if v, _ := src.Field(2, "username"); v != "charlie" {
		t.Errorf("Field(2, username) = %v, want charlie", v)
	}

	// Wrap around
	if v, _ := src.Field(3, "username"); v != "alice" {
		t.Errorf("Field(3, username) = %v, want alice (wrap around)", v)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "products.json")

	content := `[
		{"id": 1, "name": "Widget", "price": 9.99},
		{"id": 2, "name": "Gadget", "price": 19.99}
	]`

	if err := os.WriteFile(jsonPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadFile("products", jsonPath, ModeSequential, "")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if src.Len() != 2 {
		t.Errorf("Len() = %d, want 2", src.Len())
	}

	row := src.At(0)
	if row["id"] != float64(1) {
		t.Errorf("row[id] = %v (%T), want 1", row["id"], row["id"])
	}
	if row["name"] != "Widget" {
		t.Errorf("row[name] = %v, want Widget", row["name"])
	}
	if row["price"] != 9.99 {
		t.Errorf("row[price] = %v, want 9.99", row["price"])
	}
}

func TestRelativePath(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")

	content := `col1
value1`

	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Load with relative path and config dir
	src, err := LoadFile("test", "data.csv", ModeSequential, dir)
	if err != nil {
		t.Fatalf("LoadFile with relative path: %v", err)
	}

	if src.Len() != 1 {
		t.Errorf("Len() = %d, want 1", src.Len())
	}
}

func TestModeHashed(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "hashed.csv")

	content := `value
a
b
c
d
e`

	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadFile("hashed", csvPath, ModeHashed, "")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	seen := make(map[string]bool)
	for i := int64(0); i < 100; i++ {
		v, ok := src.Field(i, "value")
		if !ok {
			t.Fatalf("Field(%d) missing", i)
		}
		seen[v.(string)] = true

		// Same cycle, same row
		again, _ := src.Field(i, "value")
		if again != v {
			t.Errorf("Field(%d) = %v then %v, want stable", i, v, again)
		}
	}

	if len(seen) < 2 {
		t.Errorf("Hashed mode returned only %d unique values in 100 cycles", len(seen))
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeSequential, false},
		{"sequential", ModeSequential, false},
		{"Hashed", ModeHashed, false},
		{"random", ModeHashed, false},
		{"shuffled", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmptySource(t *testing.T) {
	src := NewSource("empty", nil, ModeSequential)
	if src.At(0) != nil {
		t.Error("At() on empty source should return nil")
	}
	if _, ok := src.Field(0, "x"); ok {
		t.Error("Field() on empty source should report missing")
	}
}

func TestEmptyFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "empty.csv")

	content := `header`

	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile("empty", csvPath, ModeSequential, "")
	if err == nil {
		t.Error("LoadFile should fail for CSV with no data rows")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.xml")

	if err := os.WriteFile(path, []byte("<data/>"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile("xml", path, ModeSequential, "")
	if err == nil {
		t.Error("LoadFile should fail for unsupported format")
	}
}

func TestCacheLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "users.csv")
	if err := os.WriteFile(csvPath, []byte("name\nalice\nbob\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(dir)
	seq, err := cache.Load("users.csv", ModeSequential)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Remove the file; the second load must come from the cache
	if err := os.Remove(csvPath); err != nil {
		t.Fatal(err)
	}
	hashed, err := cache.Load("users.csv", ModeHashed)
	if err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if seq.Len() != 2 || hashed.Len() != 2 {
		t.Errorf("Len() = %d/%d, want 2/2", seq.Len(), hashed.Len())
	}
	if hashed.Mode() != ModeHashed {
		t.Errorf("Mode() = %q, want hashed", hashed.Mode())
	}
}

func TestConcurrentAccess(t *testing.T) {
	src := NewSource("test", []map[string]any{
		{"v": 1}, {"v": 2}, {"v": 3},
	}, ModeSequential)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := int64(0); j < 100; j++ {
				row := src.At(j)
				if row == nil {
					t.Error("At() returned nil")
				}
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestAtReturnsCopy(t *testing.T) {
	// Verify that At() returns a copy, not a reference to internal data
	src := NewSource("test", []map[string]any{
		{"key": "original"},
	}, ModeSequential)

	// Get the first row and mutate it
	row1 := src.At(0)
	row1["key"] = "mutated"
	row1["new_key"] = "added"

	// Get the same row again (wraps around)
	row2 := src.At(1)

	// Original data should be unchanged
	if row2["key"] != "original" {
		t.Errorf("mutation affected original data: got %v, want 'original'", row2["key"])
	}
	if _, exists := row2["new_key"]; exists {
		t.Error("added key should not exist in original data")
	}
}
