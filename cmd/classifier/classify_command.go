package main

import (
	"fmt"

	"github.com/spf13/cobra"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/unknown"
)

type classifyOutput struct {
	OK         bool                    `json:"ok"`
	Tool       string                  `json:"tool"`
	Version    string                  `json:"version"`
	Known      bool                    `json:"known"`
	Reason     classifier.Reason       `json:"reason"`
	Label      string                  `json:"label,omitempty"`
	Confidence float64                 `json:"confidence"`
	Similarity float64                 `json:"similarity"`
	Input      string                  `json:"input,omitempty"`
	TopK       []classifier.Prediction `json:"topk"`
	PendingID  string                  `json:"pending_id,omitempty"`
	Cluster    string                  `json:"cluster,omitempty"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var (
		input         embeddingInput
		recordUnknown bool
		source        string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify an embedding as a known class or Unknown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := input.resolve(cmd.Context(), ctx)
			if err != nil {
				return err
			}

			clf, release, err := ctx.openClassifier()
			if err != nil {
				return err
			}
			defer release()

			result, err := clf.Classify(emb.embedding)
			if err != nil {
				return err
			}

			topk := result.TopK
			if topk == nil {
				topk = []classifier.Prediction{}
			}
			out := classifyOutput{
				OK:         true,
				Tool:       toolName,
				Version:    version,
				Known:      result.Known,
				Reason:     result.Reason,
				Label:      result.Label,
				Confidence: result.Confidence,
				Similarity: result.Similarity,
				Input:      emb.kind,
				TopK:       topk,
			}

			if recordUnknown && !result.Known {
				if source == "" {
					source = emb.source
				}
				if _, err := ctx.updateBucket(cmd.Context(), func(b *unknown.Bucket) error {
					sample, err := b.Add(emb.embedding, source)
					if err != nil {
						return err
					}
					out.PendingID = sample.ID
					out.Cluster, err = b.Cluster(sample.ID)
					return err
				}); err != nil {
					return fmt.Errorf("record unknown: %w", err)
				}
			}
			return writeJSON(cmd, out)
		},
	}

	input.register(cmd)
	cmd.Flags().BoolVar(&recordUnknown, "record-unknown", false, "Keep Unknown embeddings in the unknown bucket for later review")
	cmd.Flags().StringVar(&source, "source", "", "Where the embedding came from, stored with recorded unknowns")
	return cmd
}
