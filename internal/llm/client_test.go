package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentis-health/discharge-orchestrator/internal/config"
)

func TestNewDefaultsToMock(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantMock bool
	}{
		{"Explicit mock", "mock", true},
		{"Unknown provider", "claude", true},
		{"Empty provider", "", true},
		{"OpenAI", "openai", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(config.LLMConfig{Provider: tt.provider, Model: "m"})
			_, isMock := client.(MockClient)
			if isMock != tt.wantMock {
				t.Errorf("New(%q) mock = %v, want %v", tt.provider, isMock, tt.wantMock)
			}
		})
	}
}

func TestMockClientComplete(t *testing.T) {
	got, err := MockClient{Model: "mock-1"}.Complete(context.Background(), "sys", "user", nil)
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if got.Model != "mock-1" || string(got.JSON) != `{"mock":true}` {
		t.Errorf("Complete() = %+v, want fixed stub", got)
	}
}

func chatFixture(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("request path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(chatFixture(`{"tasks":[],"messages":[]}`)))
	}))
	defer srv.Close()

	client := &OpenAIClient{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: srv.URL, HTTP: srv.Client()}
	schema := map[string]any{"type": "object"}

	got, err := client.Complete(context.Background(), "sys", "user", schema)
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if got.Text != `{"tasks":[],"messages":[]}` {
		t.Errorf("Text = %q", got.Text)
	}
	if string(got.JSON) != `{"tasks":[],"messages":[]}` {
		t.Errorf("JSON = %s, want parsed structured output", got.JSON)
	}
}

func TestOpenAIClientNonJSONOutputLeavesJSONNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(chatFixture("Sure! Here is the plan you asked for.")))
	}))
	defer srv.Close()

	client := &OpenAIClient{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: srv.URL, HTTP: srv.Client()}
	got, err := client.Complete(context.Background(), "sys", "user", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if got.JSON != nil {
		t.Errorf("JSON = %s, want nil for prose output", got.JSON)
	}
}

func TestOpenAIClientSchemaRejectedFallsBackToJSONObject(t *testing.T) {
	var formats []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		formats = append(formats, req.ResponseFormat.Type)

		if req.ResponseFormat.Type == "json_schema" {
			http.Error(w, `{"error":"response_format not supported"}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(chatFixture(`{"tasks":[]}`)))
	}))
	defer srv.Close()

	client := &OpenAIClient{Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: srv.URL, HTTP: srv.Client()}
	got, err := client.Complete(context.Background(), "sys", "user", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("Complete() = %v", err)
	}
	if len(formats) != 2 || formats[0] != "json_schema" || formats[1] != "json_object" {
		t.Fatalf("response_format sequence = %v, want json_schema then json_object", formats)
	}
	if string(got.JSON) != `{"tasks":[]}` {
		t.Errorf("JSON = %s after fallback", got.JSON)
	}
}

func TestOpenAIClientMissingAPIKey(t *testing.T) {
	client := &OpenAIClient{Model: "gpt-4o-mini", HTTP: http.DefaultClient}
	if _, err := client.Complete(context.Background(), "sys", "user", nil); err == nil {
		t.Error("Complete() = nil error without API key")
	}
}
