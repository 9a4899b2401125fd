package extract

import (
	"errors"
	"reflect"
	"testing"
)

func TestUpdates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		opts    Options
		want    map[string]any
		wantErr bool
	}{
		{
			name:    "nested object with trailing prose",
			content: "SHARED_STATE_UPDATE:\n{\"a\": {\"b\": 1}}\ntrailing text",
			want:    map[string]any{"a": map[string]any{"b": float64(1)}},
		},
		{
			name:    "block after generated code",
			content: "<form id=\"loginForm\"></form>\n\nSHARED_STATE_UPDATE:\n{\"ids\": [\"loginForm\"]}",
			want:    map[string]any{"ids": []any{"loginForm"}},
		},
		{
			name:    "only first marker is used",
			content: "SHARED_STATE_UPDATE: {\"first\": true}\nSHARED_STATE_UPDATE: {\"second\": true}",
			want:    map[string]any{"first": true},
		},
		{
			name:    "custom marker",
			content: "@@STATE@@ {\"k\": \"v\"}",
			opts:    Options{Marker: "@@STATE@@"},
			want:    map[string]any{"k": "v"},
		},
		{
			name:    "no marker",
			content: "just code, nothing to share",
			want:    map[string]any{},
			wantErr: true,
		},
		{
			name:    "marker without object",
			content: "SHARED_STATE_UPDATE: none",
			want:    map[string]any{},
			wantErr: true,
		},
		{
			name:    "malformed object in strict mode",
			content: "SHARED_STATE_UPDATE:\n{\"a\": 1,}",
			want:    map[string]any{},
			wantErr: true,
		},
		{
			name:    "malformed object repaired in lenient mode",
			content: "SHARED_STATE_UPDATE:\n{\"a\": 1,}",
			opts:    Options{Lenient: true},
			want:    map[string]any{"a": float64(1)},
		},
		{
			name:    "truncated object repaired in lenient mode",
			content: "SHARED_STATE_UPDATE:\n{\"ids\": [\"a\", \"b\"",
			opts:    Options{Lenient: true},
			want:    map[string]any{"ids": []any{"a", "b"}},
		},
		{
			name:    "array wrapped under synthetic key",
			content: "SHARED_STATE_UPDATE:\n[\"x\", \"y\"]\nthanks",
			opts:    Options{Lenient: true},
			want:    map[string]any{ListKey: []any{"x", "y"}},
		},
		{
			name:    "array of objects stays a list",
			content: "SHARED_STATE_UPDATE:\n[{\"route\": \"/login\"}]",
			opts:    Options{Lenient: true},
			want:    map[string]any{ListKey: []any{map[string]any{"route": "/login"}}},
		},
		{
			name:    "array of scalars in strict mode",
			content: "SHARED_STATE_UPDATE:\n[\"loginForm\", \"logoutBtn\"]",
			want:    map[string]any{ListKey: []any{"loginForm", "logoutBtn"}},
		},
		{
			name:    "array of objects in strict mode",
			content: "SHARED_STATE_UPDATE:\n[{\"id\": \"a\"}, {\"id\": \"b\"}]",
			want:    map[string]any{ListKey: []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}},
		},
		{
			name:    "array ends at its own bracket",
			content: "SHARED_STATE_UPDATE:\n[\"a\", \"]\"]\nSee items [1] and [2] above.",
			want:    map[string]any{ListKey: []any{"a", "]"}},
		},
		{
			name:    "array bounded before trailing brackets in lenient mode",
			content: "SHARED_STATE_UPDATE:\n[\"x\", \"y\",]\nnotes: [draft]",
			opts:    Options{Lenient: true},
			want:    map[string]any{ListKey: []any{"x", "y"}},
		},
		{
			name:    "malformed array in strict mode",
			content: "SHARED_STATE_UPDATE:\n[\"x\",]",
			want:    map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Updates(tt.content, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Updates() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got == nil {
				t.Fatal("Updates() returned nil map")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Updates() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestUpdates_NoMarkerSentinel(t *testing.T) {
	_, err := Updates("nothing", Options{})
	if !errors.Is(err, ErrNoMarker) {
		t.Errorf("Updates() error = %v, want ErrNoMarker", err)
	}
}

func TestStripUpdates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"block removed", "body { color: red; }\n\nSHARED_STATE_UPDATE:\n{\"a\": 1}\n", "body { color: red; }"},
		{"no marker unchanged", "  keep me  ", "  keep me  "},
		{"marker only", "SHARED_STATE_UPDATE: {}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripUpdates(tt.content, ""); got != tt.want {
				t.Errorf("StripUpdates() = %q, want %q", got, tt.want)
			}
		})
	}
}
