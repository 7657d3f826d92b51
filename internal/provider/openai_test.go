package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveResponse(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestChatTextResponse(t *testing.T) {
	srv := serveResponse(t, `{
		"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
	}`)
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "test-model")
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestChatToolCallResponse(t *testing.T) {
	srv := serveResponse(t, `{
		"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
			{"id": "call_1", "type": "function", "function": {
				"name": "execute_shell_command",
				"arguments": "{\"purpose\": \"p\", \"content\": \"ls\"}"
			}}
		]}, "finish_reason": "tool_calls"}]
	}`)
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "test-model")
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != "execute_shell_command" {
		t.Errorf("name = %q", call.Name)
	}
	if call.Arguments["content"] != "ls" {
		t.Errorf("arguments = %+v", call.Arguments)
	}
}

func TestChatMalformedToolArgumentsKeepRaw(t *testing.T) {
	srv := serveResponse(t, `{
		"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
			{"id": "call_1", "type": "function", "function": {
				"name": "execute_shell_command",
				"arguments": "{\"content\": \"ls\","
			}}
		]}, "finish_reason": "tool_calls"}]
	}`)
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "test-model")
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	call := resp.ToolCalls[0]
	if call.Arguments != nil {
		t.Errorf("arguments should be nil for a malformed payload, got %+v", call.Arguments)
	}
	if call.RawArguments != `{"content": "ls",` {
		t.Errorf("raw arguments = %q", call.RawArguments)
	}
}

func TestChatRequestBody(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "default-model")
	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		MaxTokens:   100,
		Temperature: 0.5,
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: FunctionDef{Name: "t", Parameters: map[string]any{"type": "object"}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if captured["model"] != "default-model" {
		t.Errorf("model = %v, want the provider default", captured["model"])
	}
	if captured["max_tokens"] != float64(100) {
		t.Errorf("max_tokens = %v", captured["max_tokens"])
	}
	if captured["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", captured["tool_choice"])
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limit"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "test-model")
	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error for a non-200 status")
	}
}
