package providers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestOpenAIComplete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
	}
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ANSWER: 0.25"}}]
		}`)
	}))
	defer server.Close()

	client := OpenAI(context.Background(), WithBaseURL(server.URL+"/"), WithAPIKey("test-key"), WithLogger(quietLogger()))
	response, err := client.Complete(context.Background(), Request{
		Model:       "gpt-4o-mini",
		System:      "you steer a point mass",
		Prompt:      "pick an action",
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if response != "ANSWER: 0.25" {
		t.Errorf("Complete() = %q, want %q", response, "ANSWER: 0.25")
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", got.Model)
	}
	if got.Temperature != 0.2 || got.MaxTokens != 64 {
		t.Errorf("temperature = %v, max tokens = %d, want 0.2 and 64", got.Temperature, got.MaxTokens)
	}
	for _, want := range []string{"pick an action", "you steer a point mass", `"system"`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("request body %s does not contain %s", gotBody, want)
		}
	}
}

func TestOpenAIRequiresModel(t *testing.T) {
	client := OpenAI(context.Background(), WithBaseURL("http://127.0.0.1:1/"), WithLogger(quietLogger()))
	if _, err := client.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Error("expected an error without a model")
	}
}

func TestRequestFor(t *testing.T) {
	t.Run("reads known keys", func(t *testing.T) {
		req, err := RequestFor("m", map[string]any{"temperature": 0.7, "max_tokens": 128, "top_k": 3}, "sys", "prompt")
		if err != nil {
			t.Fatalf("RequestFor() error = %v", err)
		}
		want := Request{Model: "m", System: "sys", Prompt: "prompt", Temperature: 0.7, MaxTokens: 128}
		if req != want {
			t.Errorf("RequestFor() = %+v, want %+v", req, want)
		}
	})
	t.Run("nil config", func(t *testing.T) {
		req, err := RequestFor("m", nil, "", "p")
		if err != nil || req.Temperature != 0 || req.MaxTokens != 0 {
			t.Errorf("RequestFor() = %+v, %v", req, err)
		}
	})
	t.Run("bad value", func(t *testing.T) {
		if _, err := RequestFor("m", map[string]any{"temperature": []int{1}}, "", "p"); err == nil {
			t.Error("expected an error for a non-numeric temperature")
		}
	})
}

func TestGenerationConfig(t *testing.T) {
	if cfg := generationConfig(Request{Prompt: "p"}); cfg != nil {
		t.Errorf("generationConfig() = %+v, want nil without options", cfg)
	}
	cfg := generationConfig(Request{System: "sys", Temperature: 0.5, MaxTokens: 10})
	if cfg == nil || cfg.SystemInstruction == nil || cfg.Temperature == nil || cfg.MaxOutputTokens == nil {
		t.Fatalf("generationConfig() = %+v, want every option set", cfg)
	}
	if *cfg.Temperature != 0.5 || *cfg.MaxOutputTokens != 10 || cfg.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("generationConfig() = %+v", cfg)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), "carrier-pigeon"); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := Gemini(context.Background(), WithLogger(quietLogger())); err == nil {
		t.Error("expected an error without an API key")
	}
}
