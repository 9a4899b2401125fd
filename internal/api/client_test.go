package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	client, err := NewClient(ClientConfig{
		APIKey: "test-key-123",
		Model:  anthropic.ModelClaudeSonnet4_20250514,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q, want %q", client.Model(), anthropic.ModelClaudeSonnet4_20250514)
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewClient(ClientConfig{})
	if err == nil {
		t.Fatal("NewClient should fail without API key")
	}

	expected := "ANTHROPIC_API_KEY environment variable is not set"
	if err.Error() != expected {
		t.Errorf("Error = %q, want %q", err.Error(), expected)
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != DefaultAnthropicModel {
		t.Errorf("Default model = %q, want %q", client.Model(), DefaultAnthropicModel)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	tests := []struct {
		in   anthropic.Model
		want anthropic.Model
	}{
		{anthropic.ModelClaudeSonnet4_20250514, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{anthropic.ModelClaude3_5Haiku20241022, "us.anthropic.claude-3-5-haiku-20241022-v1:0"},
		{"us.anthropic.custom-v1:0", "us.anthropic.custom-v1:0"},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := translateModelForBedrock(tt.in); got != tt.want {
				t.Errorf("translateModelForBedrock(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// messagesServer fakes the Messages API, replying with text and recording the request body.
func messagesServer(t *testing.T, text string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			json.NewDecoder(r.Body).Decode(got)
		}
		content := []map[string]any{}
		if text != "" {
			content = append(content, map[string]any{"type": "text", "text": text})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-20250514",
			"content":     content,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 7},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Generate(t *testing.T) {
	var body map[string]any
	srv := messagesServer(t, "SHARED_STATE_UPDATE: {}", &body)

	client, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		Options: []option.RequestOption{option.WithBaseURL(srv.URL), option.WithMaxRetries(0)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.Generate(context.Background(), Request{Prompt: "hi", System: "be terse", MaxTokens: 123})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "SHARED_STATE_UPDATE: {}" {
		t.Errorf("Generate() = %q", text)
	}

	if body["max_tokens"] != float64(123) {
		t.Errorf("max_tokens = %v, want 123", body["max_tokens"])
	}
	if body["temperature"] != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", body["temperature"], DefaultTemperature)
	}
	if _, ok := body["system"]; !ok {
		t.Error("system prompt not sent")
	}

	input, output := client.Tracker().Total()
	if input != 12 || output != 7 {
		t.Errorf("tracked tokens = %d/%d, want 12/7", input, output)
	}
}

func TestClient_GenerateEmpty(t *testing.T) {
	srv := messagesServer(t, "", nil)

	client, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		Options: []option.RequestOption{option.WithBaseURL(srv.URL), option.WithMaxRetries(0)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Generate(context.Background(), Request{Prompt: "hi"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Generate() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestTokenTracker_AddMultiple(t *testing.T) {
	tracker := NewTokenTracker()

	tracker.Add(100, 50)
	tracker.Add(200, 100)
	tracker.Add(50, 25)

	input, output := tracker.Total()
	if input != 350 {
		t.Errorf("Input tokens = %d, want 350", input)
	}
	if output != 175 {
		t.Errorf("Output tokens = %d, want 175", output)
	}
	if tracker.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", tracker.Calls())
	}

	tracker.Reset()
	input, output = tracker.Total()
	if input != 0 || output != 0 || tracker.Calls() != 0 {
		t.Errorf("After reset: input=%d, output=%d, calls=%d", input, output, tracker.Calls())
	}
}

func TestTokenTracker_Cost(t *testing.T) {
	tracker := NewTokenTracker()

	// 1M input at $3 plus 1M output at $15.
	tracker.Add(1_000_000, 1_000_000)

	if cost := tracker.Cost(); cost != 18.0 {
		t.Errorf("Cost = %f, want 18", cost)
	}
}
