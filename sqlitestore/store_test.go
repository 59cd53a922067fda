package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "classes.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_LoadEmpty(t *testing.T) {
	store := openTestStore(t)

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap != nil {
		t.Errorf("Expected nil snapshot for fresh database, got %+v", snap)
	}
}

func TestStore_RoundTripKeepsOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	original := &classifier.Snapshot{
		Dimension: 2,
		Classes: []classifier.Class{
			{Label: "zulu", Centroid: []float64{0.25, -0.5}, Count: 3},
			{Label: "alpha", Centroid: []float64{2.0 / 3.0, 2.0 / 3.0}, Count: 3},
			{Label: "mike", Centroid: []float64{1, 0}, Count: 1},
		},
	}
	if err := store.Save(ctx, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(original, loaded) {
		t.Errorf("Round trip mismatch:\nwant %+v\n got %+v", original, loaded)
	}
}

func TestStore_SaveReplacesTable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &classifier.Snapshot{
		Dimension: 1,
		Classes: []classifier.Class{
			{Label: "a", Centroid: []float64{1}, Count: 1},
			{Label: "b", Centroid: []float64{2}, Count: 1},
		},
	}
	second := &classifier.Snapshot{
		Dimension: 1,
		Classes:   []classifier.Class{{Label: "b", Centroid: []float64{3}, Count: 2}},
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(second, loaded) {
		t.Errorf("Expected only the latest table, got %+v", loaded)
	}
}

func TestStore_EmptyTable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &classifier.Snapshot{Dimension: 4, Classes: []classifier.Class{}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.Dimension != 4 || len(loaded.Classes) != 0 {
		t.Errorf("Expected empty table with dimension 4, got %+v", loaded)
	}
}

func TestStore_WithClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	clf, err := classifier.New(classifier.Config{Store: store})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	_ = clf.Assign([]float32{1, 0, 0}, "red")
	_ = clf.Assign([]float32{0, 1, 0}, "green")
	if err := clf.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	clf2, err := classifier.New(classifier.Config{Store: reopened})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	result, err := clf2.Classify([]float32{0.1, 1, 0})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !result.Known || result.Label != "green" {
		t.Errorf("Expected green, got %+v", result)
	}
}

func TestStore_UpdateSeesCommittedTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer first.Close()
	second, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer second.Close()

	if _, err := classifier.Update(ctx, classifier.Config{Store: first}, func(clf *classifier.Classifier) error {
		return clf.Assign([]float32{1, 0}, "cat")
	}); err != nil {
		t.Fatalf("first Update failed: %v", err)
	}
	if _, err := classifier.Update(ctx, classifier.Config{Store: second}, func(clf *classifier.Classifier) error {
		return clf.Assign([]float32{0, 1}, "dog")
	}); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}

	loaded, err := first.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Classes) != 2 || loaded.Classes[0].Label != "cat" || loaded.Classes[1].Label != "dog" {
		t.Errorf("Expected [cat dog], got %+v", loaded)
	}
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &classifier.Snapshot{Dimension: 1, Classes: []classifier.Class{{Label: "a", Centroid: []float64{1}, Count: 1}}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	boom := errors.New("boom")
	err := store.Update(ctx, func(snap *classifier.Snapshot) (*classifier.Snapshot, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	// The connection must be usable again after the rollback
	if err := store.Save(ctx, &classifier.Snapshot{Dimension: 1, Classes: []classifier.Class{{Label: "b", Centroid: []float64{2}, Count: 1}}}); err != nil {
		t.Fatalf("Save after rollback failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Classes) != 1 || loaded.Classes[0].Label != "b" {
		t.Errorf("Unexpected table: %+v", loaded)
	}
}
