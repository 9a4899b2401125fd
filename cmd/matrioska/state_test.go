package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/matrioska/internal/blackboard"
)

func TestWriteState(t *testing.T) {
	board := blackboard.Open(filepath.Join(t.TempDir(), blackboard.FileName))
	if err := board.Write(map[string]any{"port": 8080.0, "api_base": "/v1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name     string
		key      string
		keysOnly bool
		want     string
		wantErr  bool
	}{
		{"keys sorted", "", true, "api_base\nport\n", false},
		{"single key", "port", false, "8080\n", false},
		{"whole board", "", false, "{\n  \"api_base\": \"/v1\",\n  \"port\": 8080\n}\n", false},
		{"missing key", "host", false, "", true},
		{"keys with argument", "port", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := writeState(&buf, board, tt.key, tt.keysOnly)
			if (err != nil) != tt.wantErr {
				t.Fatalf("writeState() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && buf.String() != tt.want {
				t.Errorf("writeState() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteState_EmptyBoardHasNoKeys(t *testing.T) {
	board := blackboard.Open(filepath.Join(t.TempDir(), blackboard.FileName))

	var buf bytes.Buffer
	if err := writeState(&buf, board, "", true); err != nil {
		t.Fatalf("writeState: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("output = %q, want empty", buf.String())
	}
}
