package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/provider"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, EmbeddingModel: "embed-test", Timeout: time.Second})
}

func TestCompleteSendsParams(t *testing.T) {
	t.Parallel()
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Model != "llama3-8b-8192" || body.MaxTokens != 1000 || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("unexpected request %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"grounded answer"},"finish_reason":"stop"}]}`))
	})

	out, err := c.Complete(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "context"},
		{Role: models.RoleUser, Content: "question"},
	}, provider.Params{Model: "llama3-8b-8192", Temperature: 0.7, MaxTokens: 1000})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "grounded answer" {
		t.Fatalf("unexpected answer %q", out)
	}
}

func TestCompleteSendsZeroTemperature(t *testing.T) {
	t.Parallel()
	var body map[string]interface{}
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	})

	_, err := c.Complete(context.Background(), []models.Message{{Role: models.RoleUser, Content: "q"}},
		provider.Params{Model: "m", Temperature: 0, MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, ok := body["temperature"].(float64)
	if !ok {
		t.Fatalf("temperature missing from request body: %v", body)
	}
	if got <= 0 || got > 1e-30 {
		t.Fatalf("expected near-zero temperature, got %v", got)
	}
}

func TestCompleteUnauthorized(t *testing.T) {
	t.Parallel()
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := c.Complete(context.Background(), []models.Message{{Role: models.RoleUser, Content: "q"}}, provider.Params{Model: "m"})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestCompleteWithoutKey(t *testing.T) {
	t.Parallel()
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Complete(context.Background(), nil, provider.Params{Model: "m"})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	t.Parallel()
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	})
	if _, err := c.Complete(context.Background(), nil, provider.Params{Model: "m"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestCompleteTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Complete(context.Background(), nil, provider.Params{Model: "m"})
	if apperr.KindOf(err) != apperr.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	t.Parallel()
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"embed-test","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`))
	})

	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("unexpected vectors %v", vecs)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	t.Parallel()
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
	})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected error for missing vectors")
	}
}
