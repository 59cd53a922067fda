package voyage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/austinfhunter/voyageai"

	"github.com/FrenchMajesty/openworld-classifier/internal/retry"
)

type fakeCall struct {
	texts []string
	model string
	opts  *voyageai.EmbeddingRequestOpts
}

// fakeEmbed returns deterministic embeddings and records every request
func fakeEmbed(calls *[]fakeCall, failures int) embedFunc {
	return func(texts []string, model string, opts *voyageai.EmbeddingRequestOpts) ([][]float32, error) {
		*calls = append(*calls, fakeCall{texts: texts, model: model, opts: opts})
		if failures > 0 {
			failures--
			return nil, errors.New("503 service unavailable")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), float32(i)}
		}
		return out, nil
	}
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}
}

func TestNewEmbedder_MissingKey(t *testing.T) {
	t.Setenv("VOYAGEAI_API_KEY", "")

	if _, err := NewEmbedder(nil, Options{}); err == nil {
		t.Error("Expected error when API key is missing")
	}
}

func TestNewEmbedder_Defaults(t *testing.T) {
	key := "test-key"
	embedder, err := NewEmbedder(&key, Options{})
	if err != nil {
		t.Fatalf("NewEmbedder failed: %v", err)
	}
	if embedder.GetEmbeddingDimensions() != EMBEDDING_DIMENSIONS {
		t.Errorf("Expected %d dimensions, got %d", EMBEDDING_DIMENSIONS, embedder.GetEmbeddingDimensions())
	}
	if embedder.model != VOYAGEAI_EMBEDDING_MODEL {
		t.Errorf("Expected model %s, got %s", VOYAGEAI_EMBEDDING_MODEL, embedder.model)
	}
}

func TestEmbedder_SetDimensionsAndModel(t *testing.T) {
	var calls []fakeCall
	embedder := newEmbedder(fakeEmbed(&calls, 0), Options{Retry: fastRetry()})

	embedder.SetDimensions(256)
	embedder.SetModel("voyage-3-large")

	if _, err := embedder.GenerateEmbedding(context.Background(), "hello"); err != nil {
		t.Fatalf("GenerateEmbedding failed: %v", err)
	}
	if calls[0].model != "voyage-3-large" {
		t.Errorf("Expected model voyage-3-large, got %s", calls[0].model)
	}
	if calls[0].opts.OutputDimension == nil || *calls[0].opts.OutputDimension != 256 {
		t.Errorf("Expected output dimension 256, got %v", calls[0].opts.OutputDimension)
	}
}

func TestEmbedder_GenerateEmbeddingsKeepsOrder(t *testing.T) {
	var calls []fakeCall
	embedder := newEmbedder(fakeEmbed(&calls, 0), Options{Retry: fastRetry()})

	embeddings, err := embedder.GenerateEmbeddings(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("GenerateEmbeddings failed: %v", err)
	}
	if len(embeddings) != 2 || embeddings[0][0] != 1 || embeddings[1][0] != 3 {
		t.Errorf("Unexpected embeddings: %v", embeddings)
	}
	if len(calls) != 1 {
		t.Errorf("Expected one batched request, got %d", len(calls))
	}
}

func TestEmbedder_EmptyText(t *testing.T) {
	var calls []fakeCall
	embedder := newEmbedder(fakeEmbed(&calls, 0), Options{Retry: fastRetry()})

	tests := []struct {
		name  string
		texts []string
	}{
		{"no texts", nil},
		{"blank", []string{"   "}},
		{"one blank among many", []string{"ok", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := embedder.GenerateEmbeddings(context.Background(), tt.texts)
			if !errors.Is(err, ErrEmptyText) {
				t.Errorf("Expected ErrEmptyText, got %v", err)
			}
		})
	}
	if len(calls) != 0 {
		t.Errorf("Expected no requests for invalid input, got %d", len(calls))
	}
}

func TestEmbedder_RetriesTransientFailures(t *testing.T) {
	var calls []fakeCall
	embedder := newEmbedder(fakeEmbed(&calls, 2), Options{Retry: fastRetry()})

	if _, err := embedder.GenerateEmbedding(context.Background(), "hello"); err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(calls))
	}
}

func TestEmbedder_RetriesExhausted(t *testing.T) {
	var calls []fakeCall
	embedder := newEmbedder(fakeEmbed(&calls, 10), Options{Retry: fastRetry()})

	_, err := embedder.GenerateEmbedding(context.Background(), "hello")
	var exhausted *retry.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected RetryExhaustedError, got %v", err)
	}
	if exhausted.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", exhausted.MaxAttempts)
	}
}

func TestEmbedder_CountMismatch(t *testing.T) {
	embed := func(texts []string, model string, opts *voyageai.EmbeddingRequestOpts) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	embedder := newEmbedder(embed, Options{Retry: fastRetry()})

	if _, err := embedder.GenerateEmbeddings(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("Expected error when the API returns fewer embeddings than requested")
	}
}

func TestParseEmbeddingType(t *testing.T) {
	tests := []struct {
		name     string
		input    VoyageEmbeddingType
		expected *string
	}{
		{"document", VoyageEmbeddingTypeDocument, strPtr("document")},
		{"query", VoyageEmbeddingTypeQuery, strPtr("query")},
		{"default", VoyageEmbeddingTypeDefault, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseEmbeddingType(tt.input)
			switch {
			case tt.expected == nil && got != nil:
				t.Errorf("Expected nil, got %q", *got)
			case tt.expected != nil && (got == nil || *got != *tt.expected):
				t.Errorf("Expected %q, got %v", *tt.expected, got)
			}
		})
	}
}

func TestEmbedder_PassesInputType(t *testing.T) {
	var calls []fakeCall
	embedder := newEmbedder(fakeEmbed(&calls, 0), Options{Retry: fastRetry(), EmbeddingType: VoyageEmbeddingTypeQuery})

	_, _ = embedder.GenerateEmbedding(context.Background(), "hello")
	if calls[0].opts.InputType == nil || *calls[0].opts.InputType != "query" {
		t.Errorf("Expected input type query, got %v", calls[0].opts.InputType)
	}
}

func strPtr(s string) *string {
	return &s
}
