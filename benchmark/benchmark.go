// Package benchmark replays a labelled embedding stream through a classifier
// in test-then-train order and reports how well it separates known classes
// from novel ones.
package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

// Learner is the classifier surface the benchmark drives
type Learner interface {
	Classify(embedding []float32) (classifier.Result, error)
	Assign(embedding []float32, label string) error
	Labels() []string
}

// Metrics summarises one prequential run
type Metrics struct {
	TotalDuration time.Duration `json:"total_duration"`
	TotalItems    int           `json:"total_items"`
	UniqueLabels  int           `json:"unique_labels"`

	Known     int `json:"known"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
	Unknown   int `json:"unknown"`

	// Items whose label had no class yet when they were classified
	NoveltyItems    int `json:"novelty_items"`
	NoveltyDetected int `json:"novelty_detected"`
	// Unknown results for labels the classifier already knew
	FalseUnknown int `json:"false_unknown"`

	Accuracy      float64 `json:"accuracy"`       // correct / known
	Coverage      float64 `json:"coverage"`       // known / total
	NoveltyRecall float64 `json:"novelty_recall"` // novelty detected / novelty items

	LatencyP50 time.Duration   `json:"latency_p50"`
	LatencyP95 time.Duration   `json:"latency_p95"`
	Latency    []time.Duration `json:"-"`
}

// Result is the outcome for one dataset item
type Result struct {
	Label      string            `json:"label"`
	Predicted  string            `json:"predicted,omitempty"`
	Known      bool              `json:"known"`
	Reason     classifier.Reason `json:"reason"`
	Confidence float64           `json:"confidence"`
	Similarity float64           `json:"similarity"`
	Novel      bool              `json:"novel"`
}

// Run classifies each item, scores the answer against its label, then assigns
// the label so later items see it. Classes already in the learner count as
// known from the start.
func Run(ctx context.Context, l Learner, items []DatasetItem, logger *slog.Logger) (*Metrics, []Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	seen := make(map[string]bool)
	for _, label := range l.Labels() {
		seen[label] = true
	}

	m := &Metrics{Latency: make([]time.Duration, 0, len(items))}
	results := make([]Result, 0, len(items))
	start := time.Now()

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		t := time.Now()
		res, err := l.Classify(item.Embedding)
		m.Latency = append(m.Latency, time.Since(t))
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: classify: %w", i, err)
		}

		novel := !seen[item.Label]
		r := Result{
			Label:      item.Label,
			Known:      res.Known,
			Reason:     res.Reason,
			Confidence: res.Confidence,
			Similarity: res.Similarity,
			Novel:      novel,
		}

		m.TotalItems++
		if novel {
			m.NoveltyItems++
		}
		switch {
		case res.Known:
			m.Known++
			r.Predicted = res.Label
			if res.Label == item.Label {
				m.Correct++
			} else {
				m.Incorrect++
			}
		case novel:
			m.Unknown++
			m.NoveltyDetected++
		default:
			m.Unknown++
			m.FalseUnknown++
		}
		results = append(results, r)

		if err := l.Assign(item.Embedding, item.Label); err != nil {
			return nil, nil, fmt.Errorf("item %d: assign: %w", i, err)
		}
		seen[item.Label] = true

		if (i+1)%100 == 0 {
			logger.Info("benchmark progress", "processed", i+1, "total", len(items))
		}
	}

	m.TotalDuration = time.Since(start)
	m.UniqueLabels = len(seen)
	m.finalize()

	logger.Info("benchmark complete",
		"items", m.TotalItems,
		"accuracy", m.Accuracy,
		"coverage", m.Coverage,
		"novelty_recall", m.NoveltyRecall,
	)
	return m, results, nil
}

func (m *Metrics) finalize() {
	m.Accuracy = ratio(m.Correct, m.Known)
	m.Coverage = ratio(m.Known, m.TotalItems)
	m.NoveltyRecall = ratio(m.NoveltyDetected, m.NoveltyItems)
	m.LatencyP50 = percentile(m.Latency, 0.50)
	m.LatencyP95 = percentile(m.Latency, 0.95)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// percentile returns the nearest-rank percentile of durations
func percentile(durations []time.Duration, p float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted))*p+0.5) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
