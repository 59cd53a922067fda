package voyage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/austinfhunter/voyageai"

	"github.com/FrenchMajesty/openworld-classifier/internal/retry"
)

const EMBEDDING_DIMENSIONS = 1024

const VOYAGEAI_EMBEDDING_MODEL = "voyage-3.5-lite"

type VoyageEmbeddingType string

const (
	VoyageEmbeddingTypeDocument VoyageEmbeddingType = "document"
	VoyageEmbeddingTypeQuery    VoyageEmbeddingType = "query"
	VoyageEmbeddingTypeDefault  VoyageEmbeddingType = ""
)

// ErrEmptyText is returned when asked to embed blank text
var ErrEmptyText = errors.New("cannot embed empty text")

// embedFunc performs one batch embedding request
type embedFunc func(texts []string, model string, opts *voyageai.EmbeddingRequestOpts) ([][]float32, error)

// Embedder generates text embeddings with Voyage AI. Embeddings of class
// descriptions or transcripts can be fed straight into the classifier.
type Embedder struct {
	embed         embedFunc
	dimensions    int
	model         string
	embeddingType VoyageEmbeddingType
	retry         retry.Options
}

// Options configures an Embedder
type Options struct {
	Model         string
	Dimensions    int
	EmbeddingType VoyageEmbeddingType
	Retry         retry.Config
	Logger        *slog.Logger
}

// NewEmbedder creates a Voyage embedder. A nil apiKey falls back to the
// VOYAGEAI_API_KEY environment variable.
func NewEmbedder(apiKey *string, opts Options) (*Embedder, error) {
	key := ""
	if apiKey != nil {
		key = *apiKey
	} else {
		key = os.Getenv("VOYAGEAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("VOYAGEAI_API_KEY environment variable not set and no value provided")
	}

	client := voyageai.NewClient(&voyageai.VoyageClientOpts{
		Key: key,
	})

	embed := func(texts []string, model string, reqOpts *voyageai.EmbeddingRequestOpts) ([][]float32, error) {
		resp, err := client.Embed(texts, model, reqOpts)
		if err != nil {
			return nil, err
		}
		out := make([][]float32, len(resp.Data))
		for i, obj := range resp.Data {
			out[i] = obj.Embedding
		}
		return out, nil
	}

	return newEmbedder(embed, opts), nil
}

func newEmbedder(embed embedFunc, opts Options) *Embedder {
	if opts.Model == "" {
		opts.Model = VOYAGEAI_EMBEDDING_MODEL
	}
	if opts.Dimensions == 0 {
		opts.Dimensions = EMBEDDING_DIMENSIONS
	}
	cfg := opts.Retry
	if cfg.MaxRetries == 0 && cfg.BaseDelay == 0 {
		cfg = retry.DefaultConfig()
	}

	return &Embedder{
		embed:         embed,
		dimensions:    opts.Dimensions,
		model:         opts.Model,
		embeddingType: opts.EmbeddingType,
		retry: retry.Options{
			Config:  cfg,
			Logger:  opts.Logger,
			APIName: "Voyage",
		},
	}
}

// SetDimensions sets the dimensions for the embedding model
func (e *Embedder) SetDimensions(dimensions int) {
	e.dimensions = dimensions
}

// SetModel sets the model for the embedding model
func (e *Embedder) SetModel(model string) {
	e.model = model
}

// GetEmbeddingDimensions returns the dimension count for the embedding model
func (e *Embedder) GetEmbeddingDimensions() int {
	return e.dimensions
}

// GenerateEmbedding generates an embedding for a single text
func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateEmbeddings generates embeddings for multiple texts, in input order
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
	}

	dimensions := e.dimensions
	reqOpts := &voyageai.EmbeddingRequestOpts{
		InputType:       parseEmbeddingType(e.embeddingType),
		OutputDimension: &dimensions,
	}

	embeddings, err := retry.Do(ctx, e.retry, func(ctx context.Context, attempt int) ([][]float32, error) {
		return e.embed(texts, e.model, reqOpts)
	})
	if err != nil {
		return nil, fmt.Errorf("could not get embeddings: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("could not get embeddings: expected %d, got %d", len(texts), len(embeddings))
	}
	return embeddings, nil
}

func parseEmbeddingType(embeddingType VoyageEmbeddingType) *string {
	if embeddingType != VoyageEmbeddingTypeDefault {
		value := string(embeddingType)
		return &value
	}
	return nil
}
