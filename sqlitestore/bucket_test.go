package sqlitestore

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/unknown"
)

func TestStore_BucketLoadEmpty(t *testing.T) {
	store := openTestStore(t)

	st, err := store.LoadBucket(context.Background())
	if err != nil {
		t.Fatalf("LoadBucket failed: %v", err)
	}
	if st != nil {
		t.Errorf("Expected nil state for fresh database, got %+v", st)
	}
}

func TestStore_BucketRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	original := &unknown.State{
		Dimension: 2,
		NextID:    3,
		Samples: []unknown.Sample{
			{ID: "s2", Embedding: []float32{0, 1}, Source: "clip.mp4", AddedAt: at, ClusterID: "cluster-002"},
			{ID: "s1", Embedding: []float32{0.5, 0.25}, AddedAt: at.Add(time.Second), ClusterID: ""},
		},
		Clusters: []unknown.ClusterState{
			{ID: "cluster-001", Name: "dogs", Centroid: []float64{1, 0}, Root: "cluster-001"},
			{ID: "cluster-002", Centroid: []float64{0, 1}, Root: "cluster-001"},
		},
	}
	if err := store.SaveBucket(ctx, original); err != nil {
		t.Fatalf("SaveBucket failed: %v", err)
	}

	loaded, err := store.LoadBucket(ctx)
	if err != nil {
		t.Fatalf("LoadBucket failed: %v", err)
	}
	if !reflect.DeepEqual(original, loaded) {
		t.Errorf("Round trip mismatch:\nwant %+v\n got %+v", original, loaded)
	}
}

// TestStore_BucketSharesDatabase checks the class table and the bucket can
// live in one file without clobbering each other
func TestStore_BucketSharesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, err := unknown.Update(ctx, unknown.Config{}, store, func(b *unknown.Bucket) error {
		s, err := b.Add([]float32{1, 0, 0}, "cam")
		if err != nil {
			return err
		}
		_, err = b.Cluster(s.ID)
		return err
	}); err != nil {
		t.Fatalf("bucket Update failed: %v", err)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap != nil {
		t.Errorf("Expected no class table yet, got %+v", snap)
	}

	if _, err := classifier.Update(ctx, classifier.Config{Store: store}, func(clf *classifier.Classifier) error {
		return clf.Assign([]float32{0, 1, 0}, "dog")
	}); err != nil {
		t.Fatalf("class Update failed: %v", err)
	}

	st, err := store.LoadBucket(ctx)
	if err != nil {
		t.Fatalf("LoadBucket failed: %v", err)
	}
	if len(st.Samples) != 1 || st.Samples[0].Source != "cam" || st.Samples[0].ClusterID != "cluster-001" {
		t.Errorf("Unexpected bucket: %+v", st)
	}
	snap, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap == nil || len(snap.Classes) != 1 || snap.Classes[0].Label != "dog" {
		t.Errorf("Unexpected class table: %+v", snap)
	}
}
