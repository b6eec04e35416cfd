package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProviderJSONMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-3.5-turbo","choices":[{"index":0,"message":{"role":"assistant","content":"{\"results\":[]}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1", "")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    []Message{{Role: "user", Content: "grade"}},
		Temperature: Temperature(0),
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"results":[]}` || resp.Usage.InputTokens != 10 || resp.Provider != "openai" {
		t.Errorf("resp = %+v", resp)
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", got["response_format"])
	}
	if temp, ok := got["temperature"].(float64); !ok || temp <= 0 || temp > 1e-6 {
		t.Errorf("temperature = %v, want a near-zero value in the body", got["temperature"])
	}
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","model":"gpt-3.5-turbo","choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewOpenAIProvider("k", srv.URL+"/v1", "").Chat(context.Background(), ChatRequest{Model: "gpt-3.5-turbo"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOllamaProvider(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Message:         Message{Role: "assistant", Content: "좋은 발표입니다"},
			PromptEvalCount: 7,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "")
	if p.DefaultModel() != "llama3" {
		t.Errorf("default model = %q", p.DefaultModel())
	}
	resp, err := p.Chat(context.Background(), ChatRequest{Model: "llama3", JSONMode: true, Temperature: Temperature(0)})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Format != "json" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if temp, ok := got.Options["temperature"]; !ok || temp != float64(0) {
		t.Errorf("options = %v", got.Options)
	}
	if resp.Content != "좋은 발표입니다" || resp.Usage.OutputTokens != 3 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOllamaProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "").Chat(context.Background(), ChatRequest{Model: "nope"})
	if statusCode(err) != http.StatusNotFound {
		t.Fatalf("err = %v, want a 404 StatusError", err)
	}
	if retryable(err) {
		t.Error("404 should not be retried")
	}
}
