package unknown

import (
	"context"
	"fmt"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/internal/disjoint_set"
	"github.com/FrenchMajesty/openworld-classifier/internal/vecmath"
)

// State is a serialisable copy of a Bucket
type State struct {
	Dimension int            `json:"dimension"`
	NextID    int            `json:"next_id"`
	Samples   []Sample       `json:"samples"`  // pending, in add order
	Clusters  []ClusterState `json:"clusters"` // creation order
}

// ClusterState is one provisional cluster. Root is the id of the cluster it
// was merged into, or its own id.
type ClusterState struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Centroid []float64 `json:"centroid"`
	Root     string    `json:"root"`
}

// Store persists the bucket. LoadBucket returns nil when nothing has been
// saved yet.
type Store interface {
	LoadBucket(ctx context.Context) (*State, error)
	SaveBucket(ctx context.Context, st *State) error
}

// Updater is implemented by stores that can run a whole load, modify, save
// sequence under one exclusive lock.
type Updater interface {
	UpdateBucket(ctx context.Context, fn func(*State) (*State, error)) error
}

// State returns a deep copy of the bucket
func (b *Bucket) State() *State {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := &State{
		Dimension: b.dimension,
		NextID:    b.nextID,
		Samples:   make([]Sample, 0, len(b.order)),
		Clusters:  make([]ClusterState, 0, len(b.created)),
	}
	for _, id := range b.order {
		s := *b.samples[id]
		s.Embedding = append([]float32(nil), s.Embedding...)
		st.Samples = append(st.Samples, s)
	}
	for _, cid := range b.created {
		c := b.clusters[cid]
		st.Clusters = append(st.Clusters, ClusterState{
			ID:       c.id,
			Name:     c.name,
			Centroid: append([]float64(nil), c.centroid...),
			Root:     b.root(cid),
		})
	}
	return st
}

// Restore replaces the bucket's contents with a validated copy of st
func (b *Bucket) Restore(st *State) error {
	if st == nil {
		return fmt.Errorf("%w: nil bucket state", classifier.ErrInvalidInput)
	}
	if st.Dimension < 0 || st.NextID < 0 {
		return fmt.Errorf("%w: negative bucket dimension or cluster counter", classifier.ErrInvalidInput)
	}
	if (len(st.Samples) > 0 || len(st.Clusters) > 0) && st.Dimension == 0 {
		return fmt.Errorf("%w: bucket state has samples but no dimension", classifier.ErrInvalidInput)
	}

	clusters := make(map[string]*cluster, len(st.Clusters))
	roots := make(map[string]string, len(st.Clusters))
	created := make([]string, 0, len(st.Clusters))
	for _, cs := range st.Clusters {
		if cs.ID == "" {
			return fmt.Errorf("%w: cluster with empty id", classifier.ErrInvalidInput)
		}
		if _, dup := clusters[cs.ID]; dup {
			return fmt.Errorf("%w: duplicate cluster %s", classifier.ErrInvalidInput, cs.ID)
		}
		if len(cs.Centroid) != st.Dimension {
			return &classifier.DimensionMismatchError{Expected: st.Dimension, Got: len(cs.Centroid)}
		}
		if !vecmath.Finite64(cs.Centroid) {
			return fmt.Errorf("%w: cluster %s has a non-finite centroid", classifier.ErrInvalidInput, cs.ID)
		}
		clusters[cs.ID] = &cluster{
			id:       cs.ID,
			name:     cs.Name,
			centroid: append([]float64(nil), cs.Centroid...),
		}
		roots[cs.ID] = cs.Root
		created = append(created, cs.ID)
	}
	for id, root := range roots {
		if root == id {
			continue
		}
		if root == "" || roots[root] != root {
			return fmt.Errorf("%w: cluster %s merged into non-root %q", classifier.ErrInvalidInput, id, root)
		}
	}

	samples := make(map[string]*Sample, len(st.Samples))
	order := make([]string, 0, len(st.Samples))
	for _, s := range st.Samples {
		if s.ID == "" {
			return fmt.Errorf("%w: sample with empty id", classifier.ErrInvalidInput)
		}
		if _, dup := samples[s.ID]; dup {
			return fmt.Errorf("%w: duplicate sample %s", classifier.ErrInvalidInput, s.ID)
		}
		if len(s.Embedding) != st.Dimension {
			return &classifier.DimensionMismatchError{Expected: st.Dimension, Got: len(s.Embedding)}
		}
		if !vecmath.Finite(s.Embedding) {
			return fmt.Errorf("%w: sample %s has a non-finite embedding", classifier.ErrInvalidInput, s.ID)
		}
		if s.ClusterID != "" && clusters[s.ClusterID] == nil {
			return fmt.Errorf("%w: sample %s references %s", ErrClusterNotFound, s.ID, s.ClusterID)
		}
		cp := s
		cp.Embedding = append([]float32(nil), s.Embedding...)
		samples[s.ID] = &cp
		order = append(order, s.ID)
	}

	// Members join their root as fresh singletons, so the root always survives
	sets := disjoint_set.NewDSU()
	for _, cid := range created {
		sets.Add(cid)
	}
	for _, cid := range created {
		if root := roots[cid]; root != cid {
			sets.Union(sets.FindOrCreate(root), sets.FindOrCreate(cid))
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = samples
	b.order = order
	b.clusters = clusters
	b.created = created
	b.sets = sets
	b.dimension = st.Dimension
	b.nextID = st.NextID

	b.logger.Debug("unknown bucket restored", "samples", len(order), "clusters", len(created))
	return nil
}

// Load builds a Bucket from the state held in store
func Load(ctx context.Context, cfg Config, store Store) (*Bucket, error) {
	st, err := store.LoadBucket(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unknown bucket: %w", err)
	}
	b := New(cfg)
	if st != nil {
		if err := b.Restore(st); err != nil {
			return nil, fmt.Errorf("failed to restore unknown bucket: %w", err)
		}
	}
	return b, nil
}

// Update loads the bucket from store, lets fn modify it and saves the
// result. Stores implementing Updater hold their lock across the whole
// sequence.
func Update(ctx context.Context, cfg Config, store Store, fn func(*Bucket) error) (*Bucket, error) {
	var bucket *Bucket
	apply := func(st *State) (*State, error) {
		b := New(cfg)
		if st != nil {
			if err := b.Restore(st); err != nil {
				return nil, fmt.Errorf("failed to restore unknown bucket: %w", err)
			}
		}
		if err := fn(b); err != nil {
			return nil, err
		}
		bucket = b
		return b.State(), nil
	}

	if u, ok := store.(Updater); ok {
		if err := u.UpdateBucket(ctx, apply); err != nil {
			return nil, err
		}
		return bucket, nil
	}

	st, err := store.LoadBucket(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unknown bucket: %w", err)
	}
	next, err := apply(st)
	if err != nil {
		return nil, err
	}
	if err := store.SaveBucket(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save unknown bucket: %w", err)
	}
	return bucket, nil
}
