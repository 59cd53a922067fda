package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/benchmark"
	"github.com/FrenchMajesty/openworld-classifier/unknown"
)

func newEvalCommand(ctx *commandContext) *cobra.Command {
	var (
		datasetPath string
		limit       int
		metricsDir  string
		clusters    bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Replay a labelled dataset in test-then-train order",
		Long: "Replay a labelled CSV dataset (label,embedding) through a fresh classifier " +
			"using the configured thresholds. The configured store is not touched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			thresholds, err := ctx.thresholds(cfg)
			if err != nil {
				return err
			}

			items, err := benchmark.LoadDataset(datasetPath, limit)
			if err != nil {
				return err
			}

			clf, err := classifier.New(classifier.Config{
				Thresholds: &thresholds,
				TopK:       cfg.Classifier.TopK,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			metrics, results, err := benchmark.Run(cmd.Context(), clf, items, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Items", strconv.Itoa(metrics.TotalItems)},
					{"Labels", strconv.Itoa(metrics.UniqueLabels)},
					{"Known", strconv.Itoa(metrics.Known)},
					{"Correct", strconv.Itoa(metrics.Correct)},
					{"Unknown", strconv.Itoa(metrics.Unknown)},
					{"Novelty detected", fmt.Sprintf("%d/%d", metrics.NoveltyDetected, metrics.NoveltyItems)},
					{"Accuracy", formatRate(metrics.Accuracy)},
					{"Coverage", formatRate(metrics.Coverage)},
					{"Novelty recall", formatRate(metrics.NoveltyRecall)},
					{"Latency p50", metrics.LatencyP50.String()},
					{"Latency p95", metrics.LatencyP95.String()},
				},
				[]columnAlignment{alignLeft, alignRight},
			))

			if clusters {
				if err := renderUnknownClusters(cmd, items, results, cfg.Unknown.ClusterSimilarity); err != nil {
					return err
				}
			}

			if metricsDir != "" {
				path, err := benchmark.SaveMetrics(metricsDir, metrics)
				if err != nil {
					return fmt.Errorf("save metrics: %w", err)
				}
				if _, err := benchmark.SaveResults(metricsDir, results); err != nil {
					return fmt.Errorf("save results: %w", err)
				}
				fmt.Fprintf(out, "Metrics written to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "CSV dataset with label and embedding columns")
	cmd.Flags().IntVar(&limit, "limit", 0, "Only replay the first N rows (0 for all)")
	cmd.Flags().StringVar(&metricsDir, "metrics-dir", "", "Directory to write metrics and per-item results to")
	cmd.Flags().BoolVar(&clusters, "cluster-unknowns", false, "Group rejected items into provisional clusters")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

// renderUnknownClusters feeds every rejected item into an unknown bucket and
// prints the provisional clusters with the true labels they hold.
func renderUnknownClusters(cmd *cobra.Command, items []benchmark.DatasetItem, results []benchmark.Result, similarity float64) error {
	bucket := unknown.New(unknown.Config{ClusterSimilarity: similarity})
	labels := make(map[string]map[string]int)

	for i, r := range results {
		if r.Known {
			continue
		}
		sample, err := bucket.Add(items[i].Embedding, items[i].Label)
		if err != nil {
			return err
		}
		cid, err := bucket.Cluster(sample.ID)
		if err != nil {
			return err
		}
		if labels[cid] == nil {
			labels[cid] = make(map[string]int)
		}
		labels[cid][items[i].Label]++
	}

	out := cmd.OutOrStdout()
	summaries := bucket.Clusters()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No unknown items")
		return nil
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{s.ID, strconv.Itoa(s.Size), dominantLabel(labels[s.ID])})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Cluster", "Size", "Top label"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))
	return nil
}

func dominantLabel(counts map[string]int) string {
	best, bestCount := "", 0
	for label, n := range counts {
		if n > bestCount || (n == bestCount && label < best) {
			best, bestCount = label, n
		}
	}
	return best
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}
