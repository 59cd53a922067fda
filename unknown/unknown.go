// Package unknown holds embeddings the classifier rejected until a person
// resolves them. Pending samples are grouped into provisional clusters so
// similar unknowns can be named and promoted together.
package unknown

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/internal/disjoint_set"
	"github.com/FrenchMajesty/openworld-classifier/internal/vecmath"
)

// DefaultClusterSimilarity is the minimum cosine similarity for a sample to
// join an existing provisional cluster.
const DefaultClusterSimilarity = 0.55

// clusterKeep is the share of the old centroid kept when a sample joins
const clusterKeep = 0.9

var (
	// ErrSampleNotFound is returned for ids that are not pending.
	ErrSampleNotFound = errors.New("sample not found")

	// ErrClusterNotFound is returned for cluster ids that were never created.
	ErrClusterNotFound = errors.New("cluster not found")
)

// Assigner trains a class with one embedding. *classifier.Classifier satisfies it.
type Assigner interface {
	Assign(embedding []float32, label string) error
}

// Config configures a Bucket
type Config struct {
	ClusterSimilarity float64
	Logger            *slog.Logger
}

// Sample is one pending unknown embedding
type Sample struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Source    string    `json:"source,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	ClusterID string    `json:"cluster_id,omitempty"`
}

// ClusterSummary describes one provisional cluster with pending members
type ClusterSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Size   int      `json:"size"`
	Merged []string `json:"merged,omitempty"`
}

type cluster struct {
	id       string
	name     string
	centroid []float64 // unit length
}

// Bucket is the unknown bucket. It is safe for concurrent use.
type Bucket struct {
	mu        sync.Mutex
	samples   map[string]*Sample
	order     []string // add order
	clusters  map[string]*cluster
	created   []string // cluster creation order
	sets      *disjoint_set.DSU
	dimension int
	nextID    int

	threshold float64
	logger    *slog.Logger
}

// New creates an empty Bucket
func New(cfg Config) *Bucket {
	if cfg.ClusterSimilarity == 0 {
		cfg.ClusterSimilarity = DefaultClusterSimilarity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bucket{
		samples:   make(map[string]*Sample),
		clusters:  make(map[string]*cluster),
		sets:      disjoint_set.NewDSU(),
		threshold: cfg.ClusterSimilarity,
		logger:    cfg.Logger,
	}
}

// Add stores a new pending sample. The first sample fixes the bucket's
// embedding dimension.
func (b *Bucket) Add(embedding []float32, source string) (Sample, error) {
	if len(embedding) == 0 || !vecmath.Finite(embedding) {
		return Sample{}, fmt.Errorf("%w: embedding must be non-empty and finite", classifier.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dimension != 0 && len(embedding) != b.dimension {
		return Sample{}, &classifier.DimensionMismatchError{Expected: b.dimension, Got: len(embedding)}
	}
	b.dimension = len(embedding)

	s := &Sample{
		ID:        uuid.NewString(),
		Embedding: append([]float32(nil), embedding...),
		Source:    source,
		AddedAt:   time.Now().UTC(),
	}
	b.samples[s.ID] = s
	b.order = append(b.order, s.ID)

	b.logger.Debug("unknown sample added", "id", s.ID, "source", source)
	return b.view(s), nil
}

// Sample returns a pending sample by id
func (b *Bucket) Sample(id string) (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples[id]
	if !ok {
		return Sample{}, false
	}
	return b.view(s), true
}

// Pending returns every pending sample in the order it was added
func (b *Bucket) Pending() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Sample, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.view(b.samples[id]))
	}
	return out
}

// Len returns the number of pending samples
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Cluster places a pending sample in its nearest provisional cluster, or
// opens a new one when no cluster is similar enough. A sample that already
// has a cluster keeps it. Returns the cluster id.
func (b *Bucket) Cluster(id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSampleNotFound, id)
	}
	if s.ClusterID != "" {
		return b.root(s.ClusterID), nil
	}

	best := ""
	bestSim := -2.0
	for _, cid := range b.created {
		if b.root(cid) != cid {
			continue
		}
		sim := vecmath.Cosine(s.Embedding, b.clusters[cid].centroid)
		if sim > bestSim {
			best, bestSim = cid, sim
		}
	}

	if best == "" || bestSim < b.threshold {
		c := &cluster{
			id:       b.newClusterID(),
			centroid: vecmath.ToFloat64(s.Embedding),
		}
		vecmath.Normalize(c.centroid)
		b.clusters[c.id] = c
		b.created = append(b.created, c.id)
		b.sets.Add(c.id)
		s.ClusterID = c.id

		b.logger.Debug("opened provisional cluster", "cluster", c.id, "sample", id, "best_similarity", bestSim)
		return c.id, nil
	}

	vecmath.Blend(b.clusters[best].centroid, clusterKeep, s.Embedding)
	s.ClusterID = best
	return best, nil
}

// Merge joins two provisional clusters and returns the surviving id.
// The merged centroid is the size-weighted mean of both.
func (b *Bucket) Merge(a, c string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range []string{a, c} {
		if _, ok := b.clusters[id]; !ok {
			return "", fmt.Errorf("%w: %s", ErrClusterNotFound, id)
		}
	}
	rootA, rootC := b.root(a), b.root(c)
	if rootA == rootC {
		return rootA, nil
	}

	sizeA, sizeC := b.size(rootA), b.size(rootC)
	first, second := b.clusters[rootA], b.clusters[rootC]

	b.sets.Union(b.sets.FindOrCreate(rootA), b.sets.FindOrCreate(rootC))
	survivor := b.clusters[b.root(rootA)]

	wA, wC := float64(max(sizeA, 1)), float64(max(sizeC, 1))
	merged := make([]float64, len(first.centroid))
	for i := range merged {
		merged[i] = (first.centroid[i]*wA + second.centroid[i]*wC) / (wA + wC)
	}
	vecmath.Normalize(merged)
	survivor.centroid = merged

	if survivor.name == "" {
		if first.name != "" {
			survivor.name = first.name
		} else {
			survivor.name = second.name
		}
	}

	b.logger.Info("merged provisional clusters", "a", a, "b", c, "survivor", survivor.id)
	return survivor.id, nil
}

// Name attaches a human-readable name to a cluster
func (b *Bucket) Name(clusterID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clusters[clusterID]; !ok {
		return fmt.Errorf("%w: %s", ErrClusterNotFound, clusterID)
	}
	b.clusters[b.root(clusterID)].name = strings.TrimSpace(name)
	return nil
}

// Clusters summarises every cluster that still has pending members, largest
// first and then by id.
func (b *Bucket) Clusters() []ClusterSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	sizes := make(map[string]int)
	for _, id := range b.order {
		if cid := b.samples[id].ClusterID; cid != "" {
			sizes[b.root(cid)]++
		}
	}

	out := make([]ClusterSummary, 0, len(sizes))
	for cid, size := range sizes {
		summary := ClusterSummary{ID: cid, Name: b.clusters[cid].name, Size: size}
		if members := b.sets.Members(cid); len(members) > 1 {
			summary.Merged = members
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ClusterInfo summarises the cluster id belongs to, resolved to its merged
// representative. Size counts pending members only.
func (b *Bucket) ClusterInfo(id string) (ClusterSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clusters[id]; !ok {
		return ClusterSummary{}, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	root := b.root(id)
	summary := ClusterSummary{ID: root, Name: b.clusters[root].name, Size: b.size(root)}
	if members := b.sets.Members(root); len(members) > 1 {
		summary.Merged = members
	}
	return summary, nil
}

// PromoteSample trains label with a pending sample and removes it from the
// bucket. The sample stays pending when the assign fails.
func (b *Bucket) PromoteSample(id, label string, to Assigner) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSampleNotFound, id)
	}
	if err := to.Assign(s.Embedding, label); err != nil {
		return fmt.Errorf("failed to promote sample %s: %w", id, err)
	}
	b.remove(id)

	b.logger.Info("promoted unknown sample", "id", id, "label", label)
	return nil
}

// PromoteCluster trains label with every pending member of a cluster, in the
// order they were added. It stops at the first failed assign and returns how
// many members were promoted; the rest stay pending.
func (b *Bucket) PromoteCluster(clusterID, label string, to Assigner) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clusters[clusterID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrClusterNotFound, clusterID)
	}
	root := b.root(clusterID)

	members := make([]string, 0)
	for _, id := range b.order {
		if cid := b.samples[id].ClusterID; cid != "" && b.root(cid) == root {
			members = append(members, id)
		}
	}

	promoted := 0
	for _, id := range members {
		if err := to.Assign(b.samples[id].Embedding, label); err != nil {
			return promoted, fmt.Errorf("failed to promote sample %s of %s: %w", id, root, err)
		}
		b.remove(id)
		promoted++
	}

	b.logger.Info("promoted provisional cluster", "cluster", root, "label", label, "samples", promoted)
	return promoted, nil
}

// Discard drops a pending sample without training anything
func (b *Bucket) Discard(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.samples[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSampleNotFound, id)
	}
	b.remove(id)
	return nil
}

// newClusterID returns the next unused sequential id (caller holds mu)
func (b *Bucket) newClusterID() string {
	for {
		b.nextID++
		id := fmt.Sprintf("cluster-%03d", b.nextID)
		if _, taken := b.clusters[id]; !taken {
			return id
		}
	}
}

// root resolves a cluster id to its merged representative (caller holds mu)
func (b *Bucket) root(cid string) string {
	r, ok := b.sets.Root(cid)
	if !ok {
		return cid
	}
	return r
}

// size counts pending members of a root cluster (caller holds mu)
func (b *Bucket) size(root string) int {
	n := 0
	for _, id := range b.order {
		if cid := b.samples[id].ClusterID; cid != "" && b.root(cid) == root {
			n++
		}
	}
	return n
}

// remove deletes a sample (caller holds mu)
func (b *Bucket) remove(id string) {
	delete(b.samples, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// view copies a sample with its cluster resolved to the current root
func (b *Bucket) view(s *Sample) Sample {
	out := *s
	out.Embedding = append([]float32(nil), s.Embedding...)
	if out.ClusterID != "" {
		out.ClusterID = b.root(out.ClusterID)
	}
	return out
}
