package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FrenchMajesty/openworld-classifier/media"
)

// embeddingInput holds the mutually exclusive embedding source flags
type embeddingInput struct {
	vector    string
	file      string
	mediaPath string
	text      string
}

func (in *embeddingInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.vector, "vector", "", "Comma-separated embedding values")
	cmd.Flags().StringVar(&in.file, "embedding", "", "JSON file holding the embedding")
	cmd.Flags().StringVar(&in.mediaPath, "media", "", "Image, video or audio file with a precomputed .emb.json sidecar")
	cmd.Flags().StringVar(&in.text, "text", "", "Text to embed with Voyage AI")
	cmd.MarkFlagsMutuallyExclusive("vector", "embedding", "media", "text")
}

// resolved is an embedding plus where it came from
type resolved struct {
	embedding []float32
	kind      string
	source    string
}

func (in *embeddingInput) resolve(ctx context.Context, c *commandContext) (resolved, error) {
	switch {
	case in.vector != "":
		v, err := parseVector(in.vector)
		return resolved{embedding: v}, err
	case in.file != "":
		data, err := os.ReadFile(in.file)
		if err != nil {
			return resolved{}, fmt.Errorf("read embedding file: %w", err)
		}
		v, err := media.ParseEmbedding(data)
		return resolved{embedding: v, source: in.file}, err
	case in.mediaPath != "":
		v, kind, err := media.NewSidecarRegistry().Embed(ctx, in.mediaPath)
		return resolved{embedding: v, kind: kind.String(), source: in.mediaPath}, err
	case in.text != "":
		cfg, err := c.ensureConfig()
		if err != nil {
			return resolved{}, err
		}
		logger, err := c.ensureLogger()
		if err != nil {
			return resolved{}, err
		}
		embedder, err := c.newTextEmbedder(cfg, logger)
		if err != nil {
			return resolved{}, err
		}
		v, err := embedder.GenerateEmbedding(ctx, in.text)
		return resolved{embedding: v, kind: "text", source: "text"}, err
	default:
		return resolved{}, errors.New("an embedding is required: pass --vector, --embedding, --media or --text")
	}
}

// parseVector parses "0.1, 0.2,0.3" into an embedding
func parseVector(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("vector component %d is empty", i)
		}
		f, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
