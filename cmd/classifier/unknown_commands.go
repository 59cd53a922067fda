package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/unknown"
)

func newUnknownCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unknown",
		Short: "Review embeddings the classifier rejected",
		Long: "Review embeddings the classifier rejected. Pending samples are grouped into " +
			"provisional clusters that can be named, merged and promoted into classes.",
	}

	cmd.AddCommand(newUnknownAddCommand(ctx))
	cmd.AddCommand(newUnknownListCommand(ctx))
	cmd.AddCommand(newUnknownSamplesCommand(ctx))
	cmd.AddCommand(newUnknownNameCommand(ctx))
	cmd.AddCommand(newUnknownMergeCommand(ctx))
	cmd.AddCommand(newUnknownPromoteCommand(ctx))
	cmd.AddCommand(newUnknownDiscardCommand(ctx))
	return cmd
}

func newUnknownAddCommand(ctx *commandContext) *cobra.Command {
	var (
		input  embeddingInput
		source string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an embedding to the unknown bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := input.resolve(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			if source == "" {
				source = emb.source
			}

			var sample unknown.Sample
			var clusterID string
			if _, err := ctx.updateBucket(cmd.Context(), func(b *unknown.Bucket) error {
				var err error
				if sample, err = b.Add(emb.embedding, source); err != nil {
					return err
				}
				clusterID, err = b.Cluster(sample.ID)
				return err
			}); err != nil {
				return err
			}

			return writeJSON(cmd, map[string]any{
				"ok":      true,
				"tool":    toolName,
				"version": version,
				"id":      sample.ID,
				"cluster": clusterID,
			})
		},
	}

	input.register(cmd)
	cmd.Flags().StringVar(&source, "source", "", "Where the embedding came from")
	return cmd
}

func newUnknownListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List provisional clusters with pending samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := ctx.loadBucket(cmd.Context())
			if err != nil {
				return err
			}

			clusters := bucket.Clusters()
			if jsonOutput {
				return writeJSON(cmd, clusters)
			}

			out := cmd.OutOrStdout()
			if len(clusters) == 0 {
				fmt.Fprintln(out, "No pending unknown samples")
				return nil
			}

			rows := make([][]string, 0, len(clusters))
			for _, c := range clusters {
				rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(c.Size), strings.Join(c.Merged, ", ")})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Cluster", "Name", "Samples", "Merged"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print clusters as JSON")
	return cmd
}

func newUnknownSamplesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "samples",
		Short: "List pending samples in the order they were added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := ctx.loadBucket(cmd.Context())
			if err != nil {
				return err
			}

			samples := bucket.Pending()
			if jsonOutput {
				return writeJSON(cmd, samples)
			}

			out := cmd.OutOrStdout()
			if len(samples) == 0 {
				fmt.Fprintln(out, "No pending unknown samples")
				return nil
			}

			rows := make([][]string, 0, len(samples))
			for _, s := range samples {
				rows = append(rows, []string{s.ID, s.ClusterID, s.Source, s.AddedAt.Format(time.RFC3339)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Sample", "Cluster", "Source", "Added"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print samples as JSON")
	return cmd
}

func newUnknownNameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "name <cluster> <name>",
		Short: "Name a provisional cluster",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if _, err := ctx.updateBucket(cmd.Context(), func(b *unknown.Bucket) error {
				return b.Name(args[0], name)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Named %s %q\n", args[0], name)
			return nil
		},
	}
}

func newUnknownMergeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <cluster> <cluster>",
		Short: "Merge two provisional clusters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var survivor string
			if _, err := ctx.updateBucket(cmd.Context(), func(b *unknown.Bucket) error {
				var err error
				survivor, err = b.Merge(args[0], args[1])
				return err
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged into %s\n", survivor)
			return nil
		},
	}
}

func newUnknownPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <cluster|sample> [label]",
		Short: "Train a class with a pending cluster or sample",
		Long: "Train a class with every pending member of a cluster, or with one pending sample, " +
			"and remove them from the bucket. A cluster's name is used when no label is given.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			label := ""
			if len(args) > 1 {
				label = strings.TrimSpace(args[1])
			}

			promoted := 0
			if _, err := ctx.updateBucket(cmd.Context(), func(b *unknown.Bucket) error {
				info, err := b.ClusterInfo(id)
				isCluster := err == nil
				if err != nil && !errors.Is(err, unknown.ErrClusterNotFound) {
					return err
				}
				if label == "" && isCluster {
					label = info.Name
				}
				if label == "" {
					return errors.New("a label is required: pass one or name the cluster first")
				}

				_, err = ctx.updateClassifier(cmd.Context(), func(clf *classifier.Classifier) error {
					if isCluster {
						n, err := b.PromoteCluster(id, label, clf)
						promoted = n
						return err
					}
					if err := b.PromoteSample(id, label, clf); err != nil {
						return err
					}
					promoted = 1
					return nil
				})
				return err
			}); err != nil {
				return fmt.Errorf("promote %s: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Promoted %d samples to %s\n", promoted, label)
			return nil
		},
	}
}

func newUnknownDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <sample>",
		Short: "Drop a pending sample without training",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.updateBucket(cmd.Context(), func(b *unknown.Bucket) error {
				return b.Discard(args[0])
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded %s\n", args[0])
			return nil
		},
	}
}
