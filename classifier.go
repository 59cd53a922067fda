package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/FrenchMajesty/openworld-classifier/internal/vecmath"
)

// class is one class table entry. The centroid is the exact running mean of
// every embedding assigned to the label.
type class struct {
	label    string
	centroid []float64
	count    int
}

// Classifier is an open-world nearest-centroid classifier. It keeps one
// running-mean centroid per label and rejects embeddings to Unknown when the
// best match is not confident or similar enough.
//
// Classify calls may run concurrently with each other. Assign, RemoveClass,
// SetThresholds and Restore are mutually exclusive with every other call.
//
// Assign is not idempotent: every call is one training event, so callers must
// not replay the same logical assignment.
type Classifier struct {
	mu         sync.RWMutex
	classes    []*class // registration order
	index      map[string]int
	dimension  int
	thresholds Thresholds
	closed     bool

	topK   int
	store  Store
	logger *slog.Logger

	// Metrics tracking
	classifications atomic.Int64
	unknowns        atomic.Int64

	shutdownOnce sync.Once
}

// New creates a Classifier with the given configuration, loading the class
// table from cfg.Store when one is set.
func New(cfg Config) (*Classifier, error) {
	cfg.applyDefaults()

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidInput, cfg.Dimension)
	}

	c := &Classifier{
		index:      make(map[string]int),
		dimension:  cfg.Dimension,
		thresholds: *cfg.Thresholds,
		topK:       cfg.TopK,
		store:      cfg.Store,
		logger:     cfg.Logger,
	}

	if c.store != nil {
		snap, err := c.store.Load(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to load class table: %w", err)
		}
		if snap != nil {
			if err := c.Restore(snap); err != nil {
				return nil, fmt.Errorf("failed to restore class table: %w", err)
			}
		}
	}

	return c, nil
}

// Classify maps an embedding to the best matching class or to Unknown. It never
// mutates the class table.
func (c *Classifier) Classify(embedding []float32) (Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return Result{}, ErrClosed
	}

	if len(c.classes) == 0 {
		c.recordClassification(false)
		return Result{Reason: ReasonNoClasses}, nil
	}

	if err := c.checkEmbedding(embedding); err != nil {
		return Result{}, err
	}

	ranked := make([]Prediction, len(c.classes))
	for i, cl := range c.classes {
		ranked[i] = Prediction{
			Label:      cl.label,
			Similarity: vecmath.Cosine(embedding, cl.centroid),
		}
	}
	// Stable: equal similarities keep registration order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	scoreConfidence(ranked)

	top := ranked[0]
	result := Result{
		Confidence: top.Confidence,
		Similarity: top.Similarity,
		TopK:       ranked[:min(c.topK, len(ranked))],
	}

	switch {
	case top.Confidence < c.thresholds.MinTop1Confidence:
		result.Reason = ReasonLowConfidence
	case top.Similarity < c.thresholds.MinTop1Similarity:
		result.Reason = ReasonLowSimilarity
	default:
		result.Known = true
		result.Label = top.Label
		result.Reason = ReasonOK
	}

	c.recordClassification(result.Known)
	return result, nil
}

// scoreConfidence fills in confidences for a ranking sorted by similarity.
// With one class the confidence is the similarity itself. Otherwise the top
// entry is scored against the runner-up and every other entry against the top,
// as s / (s + rival) with negative similarities clamped to 0.
func scoreConfidence(ranked []Prediction) {
	if len(ranked) == 1 {
		ranked[0].Confidence = ranked[0].Similarity
		return
	}

	top := math.Max(ranked[0].Similarity, 0)
	for i := range ranked {
		rival := top
		if i == 0 {
			rival = math.Max(ranked[1].Similarity, 0)
		}
		ranked[i].Confidence = ratio(math.Max(ranked[i].Similarity, 0), rival)
	}
}

func ratio(s, rival float64) float64 {
	if s+rival == 0 {
		return 0
	}
	return s / (s + rival)
}

// Assign records one training event: the embedding joins label's class,
// creating it when the label is new. Calling it twice with the same embedding
// counts it twice. Labels are trimmed of surrounding whitespace here and in
// every other label lookup.
func (c *Classifier) Assign(embedding []float32, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.checkEmbedding(embedding); err != nil {
		return err
	}
	if c.dimension == 0 {
		c.dimension = len(embedding)
		c.logger.Debug("embedding dimension fixed", "dimension", c.dimension)
	}

	if idx, ok := c.index[label]; ok {
		cl := c.classes[idx]
		vecmath.MeanUpdate(cl.centroid, cl.count, embedding)
		cl.count++
		c.logger.Debug("class updated", "label", label, "count", cl.count)
		return nil
	}

	c.classes = append(c.classes, &class{
		label:    label,
		centroid: vecmath.ToFloat64(embedding),
		count:    1,
	})
	c.index[label] = len(c.classes) - 1
	c.logger.Debug("class created", "label", label, "classes", len(c.classes))
	return nil
}

// RemoveClass deletes a class and its centroid. Other classes are untouched.
func (c *Classifier) RemoveClass(label string) error {
	label = strings.TrimSpace(label)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	idx, ok := c.index[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, label)
	}

	c.classes = append(c.classes[:idx], c.classes[idx+1:]...)
	c.reindex()
	c.logger.Debug("class removed", "label", label, "classes", len(c.classes))
	return nil
}

// checkEmbedding validates an embedding against the fixed dimension (caller must hold lock)
func (c *Classifier) checkEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidInput)
	}
	if !vecmath.Finite(embedding) {
		return fmt.Errorf("%w: embedding contains NaN or Inf", ErrInvalidInput)
	}
	if c.dimension != 0 && len(embedding) != c.dimension {
		return &DimensionMismatchError{Expected: c.dimension, Got: len(embedding)}
	}
	return nil
}

// reindex rebuilds the label index from registration order (caller must hold lock)
func (c *Classifier) reindex() {
	c.index = make(map[string]int, len(c.classes))
	for i, cl := range c.classes {
		c.index[cl.label] = i
	}
}

// Labels returns every class label in registration order
func (c *Classifier) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	labels := make([]string, len(c.classes))
	for i, cl := range c.classes {
		labels[i] = cl.label
	}
	return labels
}

// Class returns a copy of the class registered under label
func (c *Classifier) Class(label string) (Class, bool) {
	label = strings.TrimSpace(label)

	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.index[label]
	if !ok {
		return Class{}, false
	}
	return c.classes[idx].export(), true
}

// Classes returns copies of every class in registration order
func (c *Classifier) Classes() []Class {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.exportAll()
}

func (c *Classifier) exportAll() []Class {
	out := make([]Class, len(c.classes))
	for i, cl := range c.classes {
		out[i] = cl.export()
	}
	return out
}

func (cl *class) export() Class {
	centroid := make([]float64, len(cl.centroid))
	copy(centroid, cl.centroid)
	return Class{Label: cl.label, Centroid: centroid, Count: cl.count}
}

// Len returns the number of registered classes
func (c *Classifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.classes)
}

// Dimension returns the fixed embedding length, or 0 if none has been fixed yet
func (c *Classifier) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.dimension
}

// Thresholds returns the current gates
func (c *Classifier) Thresholds() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.thresholds
}

// SetThresholds replaces the gates after validating them
func (c *Classifier) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.thresholds = t
	c.logger.Info("thresholds updated",
		"min_top1_confidence", t.MinTop1Confidence,
		"min_top1_similarity", t.MinTop1Similarity,
	)
	return nil
}

// Snapshot returns a deep copy of the class table
func (c *Classifier) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Snapshot{
		Dimension: c.dimension,
		Classes:   c.exportAll(),
	}
}

// Restore replaces the class table with a validated copy of snap
func (c *Classifier) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidInput)
	}

	if snap.Dimension < 0 {
		return fmt.Errorf("%w: negative snapshot dimension %d", ErrInvalidInput, snap.Dimension)
	}
	if len(snap.Classes) > 0 && snap.Dimension == 0 {
		return fmt.Errorf("%w: snapshot has classes but no dimension", ErrInvalidInput)
	}

	classes := make([]*class, 0, len(snap.Classes))
	seen := make(map[string]bool, len(snap.Classes))
	for _, cl := range snap.Classes {
		if strings.TrimSpace(cl.Label) == "" {
			return fmt.Errorf("%w: snapshot class with empty label", ErrInvalidInput)
		}
		if cl.Label != strings.TrimSpace(cl.Label) {
			return fmt.Errorf("%w: snapshot label %q has surrounding whitespace", ErrInvalidInput, cl.Label)
		}
		if seen[cl.Label] {
			return fmt.Errorf("%w: duplicate snapshot class %q", ErrInvalidInput, cl.Label)
		}
		if cl.Count < 1 {
			return fmt.Errorf("%w: class %q has count %d", ErrInvalidInput, cl.Label, cl.Count)
		}
		if len(cl.Centroid) != snap.Dimension {
			return &DimensionMismatchError{Expected: snap.Dimension, Got: len(cl.Centroid)}
		}
		seen[cl.Label] = true

		centroid := make([]float64, len(cl.Centroid))
		copy(centroid, cl.Centroid)
		classes = append(classes, &class{label: cl.Label, centroid: centroid, count: cl.Count})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.dimension != 0 && snap.Dimension != 0 && snap.Dimension != c.dimension {
		return &DimensionMismatchError{Expected: c.dimension, Got: snap.Dimension}
	}

	c.classes = classes
	c.reindex()
	if snap.Dimension != 0 {
		c.dimension = snap.Dimension
	}
	c.logger.Debug("class table restored", "classes", len(classes), "dimension", c.dimension)
	return nil
}

// Save writes the current class table to the configured Store
func (c *Classifier) Save(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	if err := c.store.Save(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("failed to save class table: %w", err)
	}
	return nil
}

// Close rejects further calls and saves the class table when a Store is
// configured. It's safe to call Close multiple times.
func (c *Classifier) Close(ctx context.Context) error {
	var saveErr error

	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		snap := &Snapshot{Dimension: c.dimension, Classes: c.exportAll()}
		c.mu.Unlock()

		if c.store == nil {
			return
		}
		if err := c.store.Save(ctx, snap); err != nil {
			saveErr = fmt.Errorf("failed to save class table: %w", err)
		}
	})

	return saveErr
}

// Update loads the latest class table from cfg.Store, lets fn modify it and
// saves the result. Stores implementing Updater hold their lock across the
// whole sequence, so concurrent writers never drop each other's changes.
// The returned classifier holds the saved table and is detached from the
// store.
func Update(ctx context.Context, cfg Config, fn func(*Classifier) error) (*Classifier, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	store := cfg.Store
	cfg.Store = nil

	var clf *Classifier
	apply := func(snap *Snapshot) (*Snapshot, error) {
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			if err := c.Restore(snap); err != nil {
				return nil, fmt.Errorf("failed to restore class table: %w", err)
			}
		}
		if err := fn(c); err != nil {
			return nil, err
		}
		clf = c
		return c.Snapshot(), nil
	}

	if u, ok := store.(Updater); ok {
		if err := u.Update(ctx, apply); err != nil {
			return nil, err
		}
		return clf, nil
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load class table: %w", err)
	}
	next, err := apply(snap)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save class table: %w", err)
	}
	return clf, nil
}

// Metrics returns current classifier metrics
func (c *Classifier) Metrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	samples := 0
	for _, cl := range c.classes {
		samples += cl.count
	}

	total := c.classifications.Load()
	unknowns := c.unknowns.Load()
	var unknownRate float32
	if total > 0 {
		unknownRate = float32(unknowns) / float32(total) * 100
	}

	return Metrics{
		Classes:         len(c.classes),
		Samples:         samples,
		Dimension:       c.dimension,
		Classifications: total,
		Unknowns:        unknowns,
		UnknownRate:     unknownRate,
	}
}

// recordClassification records a classification outcome for metrics
func (c *Classifier) recordClassification(known bool) {
	c.classifications.Add(1)
	if !known {
		c.unknowns.Add(1)
	}
}
