package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

func TestUpdateGitignore(t *testing.T) {
	tests := []struct {
		name     string
		existing *string
		updated  bool
		want     string
	}{
		{
			name:    "missing file is left alone",
			updated: false,
		},
		{
			name:     "entry appended",
			existing: strPtr("node_modules/\n"),
			updated:  true,
			want:     "node_modules/\n\n# Matrioska\n.matrioska/\n",
		},
		{
			name:     "newline added before entry",
			existing: strPtr("dist"),
			updated:  true,
			want:     "dist\n\n# Matrioska\n.matrioska/\n",
		},
		{
			name:     "existing entry kept",
			existing: strPtr(".matrioska/\n"),
			updated:  false,
			want:     ".matrioska/\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, ".gitignore")
			if tt.existing != nil {
				if err := os.WriteFile(path, []byte(*tt.existing), 0644); err != nil {
					t.Fatal(err)
				}
			}

			updated, err := updateGitignore(dir)
			if err != nil {
				t.Fatalf("updateGitignore() error = %v", err)
			}
			if updated != tt.updated {
				t.Errorf("updateGitignore() = %v, want %v", updated, tt.updated)
			}

			data, err := os.ReadFile(path)
			if tt.existing == nil {
				if !os.IsNotExist(err) {
					t.Errorf(".gitignore should not be created, err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf(".gitignore = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestWriteProjectConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".matrioska.yaml")

	written, err := writeProjectConfig(path, models.SchemaOrdered, "OpenAI", false)
	if err != nil {
		t.Fatalf("writeProjectConfig() error = %v", err)
	}
	if !written {
		t.Fatal("expected config to be written")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Matrioska project configuration") {
		t.Errorf("missing header:\n%s", data)
	}

	var pc projectConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		t.Fatalf("config is not valid YAML: %v", err)
	}
	if pc.Backend.Provider != "openai" {
		t.Errorf("provider = %q, want openai", pc.Backend.Provider)
	}
	if pc.Pipeline.Schema != "ordered" {
		t.Errorf("schema = %q, want ordered", pc.Pipeline.Schema)
	}
	if pc.Backend.MaxTokens != 4000 {
		t.Errorf("max_tokens = %d, want 4000", pc.Backend.MaxTokens)
	}
	if pc.Storage.BaseDir != ".matrioska" {
		t.Errorf("base_dir = %q, want .matrioska", pc.Storage.BaseDir)
	}

	written, err = writeProjectConfig(path, models.SchemaGraph, "anthropic", false)
	if err != nil || written {
		t.Errorf("existing config overwritten without force: written=%v err=%v", written, err)
	}

	written, err = writeProjectConfig(path, models.SchemaGraph, "anthropic", true)
	if err != nil || !written {
		t.Errorf("force should overwrite: written=%v err=%v", written, err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"ééééééé", 5, "éé..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func strPtr(s string) *string { return &s }
