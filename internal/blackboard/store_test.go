package blackboard

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestOpen_MissingFile(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), FileName))
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := Open(path)
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}

	// The store stays usable and overwrites the corrupt file.
	if err := s.Write(map[string]any{"a": "b"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := Open(path).Read([]string{"a"}); got["a"] != "b" {
		t.Errorf("reopened a = %v, want b", got["a"])
	}
}

func TestWriteRead(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), FileName))

	if err := s.Write(map[string]any{"ids": []any{"loginForm"}, "port": float64(8080)}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name string
		keys []string
		want map[string]any
	}{
		{"single key", []string{"ids"}, map[string]any{"ids": []any{"loginForm"}}},
		{"missing key omitted", []string{"ids", "routes"}, map[string]any{"ids": []any{"loginForm"}}},
		{"no keys", nil, map[string]any{}},
		{"only missing", []string{"nope"}, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Read(tt.keys)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Read(%v) = %v, want %v", tt.keys, got, tt.want)
			}
		})
	}
}

func TestWrite_LastWriterWins(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), FileName))

	if err := s.Write(map[string]any{"k": "v1", "other": true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(map[string]any{"k": "v2"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := map[string]any{"k": "v2", "other": true}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestWrite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := Open(path)
	updates := map[string]any{"a": map[string]any{"b": float64(1)}}

	if err := s.Write(updates); err != nil {
		t.Fatalf("Write: %v", err)
	}
	first, _ := os.ReadFile(path)

	if err := s.Write(updates); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Errorf("file changed on repeated write:\n%s\n---\n%s", first, second)
	}
}

func TestWrite_EmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := Open(path)

	if err := s.Write(nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("empty write created the store file, stat err = %v", err)
	}
}

func TestWrite_FailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := Open(filepath.Join(blocker, FileName))
	if err := s.Write(map[string]any{"k": "v"}); err == nil {
		t.Fatal("expected persist error when parent is a file")
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("Keys() after failed write = %v, want empty", keys)
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	s := Open(path)
	if err := s.Write(map[string]any{"html": "<div id=\"app\"></div>"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(Open(path).Snapshot(), s.Snapshot()) {
		t.Errorf("reopened snapshot differs from original")
	}
	if want := `"<div id=\"app\"></div>"`; !strings.Contains(string(raw), want) {
		t.Errorf("store file %s does not contain unescaped %s", raw, want)
	}
}

func TestReadReturnsCopies(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), FileName))
	if err := s.Write(map[string]any{"ids": []any{"a"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := s.Read([]string{"ids"})
	got["ids"].([]any)[0] = "mutated"

	if again := s.Read([]string{"ids"}); again["ids"].([]any)[0] != "a" {
		t.Errorf("stored value was mutated through Read result: %v", again)
	}
}
