package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

func TestNewOpenRouterClient_MissingAPIKey(t *testing.T) {
	_, err := NewOpenRouterClient(config.OpenRouterConfig{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if pipeerr.KindOf(err) != pipeerr.KindConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestNewOpenRouterClient_Defaults(t *testing.T) {
	client, err := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	if client.model != defaultOpenRouterModel {
		t.Errorf("expected default model %s, got %s", defaultOpenRouterModel, client.model)
	}
	if client.baseURL != defaultOpenRouterBaseURL {
		t.Errorf("expected default base URL %s, got %s", defaultOpenRouterBaseURL, client.baseURL)
	}
	if client.dimensions != defaultDimensions {
		t.Errorf("expected default dimensions %d, got %d", defaultDimensions, client.dimensions)
	}
}

func TestOpenRouterClient_EmbedBatch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing or wrong auth header")
		}

		var req openAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Input) != 2 {
			t.Fatalf("expected 2 inputs, got %d", len(req.Input))
		}

		resp := openAIEmbedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{
				{Embedding: []float32{0.1, 0.2, 0.3}, Index: 0},
				{Embedding: []float32{0.4, 0.5, 0.6}, Index: 1},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewOpenRouterClient(config.OpenRouterConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}

	embeddings, err := client.EmbedBatch(context.Background(), []string{"hello", "world"}, "search_document")
	if err != nil {
		t.Fatal(err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	if embeddings[0][0] != 0.1 || embeddings[1][2] != 0.6 {
		t.Error("embeddings not in request order")
	}
}

func TestOpenRouterClient_EmbedBatch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewOpenRouterClient(config.OpenRouterConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.EmbedBatch(context.Background(), []string{"hello"}, "search_document")
	if err == nil {
		t.Fatal("expected error")
	}
	if !pipeerr.IsTransient(err) {
		t.Errorf("expected transient classification, got %v", err)
	}
}
