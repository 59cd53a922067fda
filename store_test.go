package classifier_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/internal/testutil"
)

func TestFileStore_Load_NonExistentFile(t *testing.T) {
	store := classifier.NewFileStore(filepath.Join(t.TempDir(), "non_existent.json"))

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected no error when loading non-existent file, got: %v", err)
	}
	if snap != nil {
		t.Errorf("Expected nil snapshot, got %+v", snap)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "centroids.json")
	store := classifier.NewFileStore(path)

	original := &classifier.Snapshot{
		Dimension: 3,
		Classes: []classifier.Class{
			{Label: "zebra", Centroid: []float64{0.1, 0.2, 0.3}, Count: 7},
			{Label: "aardvark", Centroid: []float64{-1, 0, 1}, Count: 1},
		},
	}
	if err := store.Save(context.Background(), original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(original, loaded) {
		t.Errorf("Round trip mismatch:\nwant %+v\n got %+v", original, loaded)
	}

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("Leftover temp file %s", e.Name())
		}
	}
}

func TestFileStore_Load_CorruptedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupted.json")
	if err := os.WriteFile(path, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := classifier.NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("Expected error when loading corrupted JSON")
	}
}

func TestFileStore_WithClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "centroids.json")

	clf, err := classifier.New(classifier.Config{Store: classifier.NewFileStore(path)})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	_ = clf.Assign([]float32{1, 0}, "A")
	_ = clf.Assign([]float32{0, 1}, "B")
	_ = clf.Assign([]float32{0, 3}, "B")
	if err := clf.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := classifier.New(classifier.Config{Store: classifier.NewFileStore(path)})
	if err != nil {
		t.Fatalf("Failed to reopen classifier: %v", err)
	}
	if got := reopened.Labels(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Labels() = %v", got)
	}
	class, _ := reopened.Class("B")
	if class.Count != 2 || class.Centroid[1] != 2 {
		t.Errorf("Unexpected class B after reload: %+v", class)
	}
	if reopened.Dimension() != 2 {
		t.Errorf("Expected dimension 2, got %d", reopened.Dimension())
	}
}

// TestUpdate_ConcurrentWritersKeepBothClasses runs two writers on separate
// FileStore handles for one path; the second must wait for the first and
// build on its result.
func TestUpdate_ConcurrentWritersKeepBothClasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "centroids.json")
	ctx := context.Background()

	loaded := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := classifier.Update(ctx, classifier.Config{Store: classifier.NewFileStore(path)}, func(clf *classifier.Classifier) error {
			close(loaded)
			<-release
			return clf.Assign([]float32{1, 0}, "cat")
		})
		errs <- err
	}()

	<-loaded
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := classifier.Update(ctx, classifier.Config{Store: classifier.NewFileStore(path)}, func(clf *classifier.Classifier) error {
			return clf.Assign([]float32{0, 1}, "dog")
		})
		errs <- err
	}()

	// Give the second writer time to block on the lock
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	reopened, err := classifier.New(classifier.Config{Store: classifier.NewFileStore(path)})
	if err != nil {
		t.Fatalf("Failed to reopen classifier: %v", err)
	}
	if got := reopened.Labels(); !reflect.DeepEqual(got, []string{"cat", "dog"}) {
		t.Errorf("Labels() = %v, want [cat dog]", got)
	}
}

func TestUpdate_ErrorLeavesTableUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "centroids.json")
	ctx := context.Background()
	store := classifier.NewFileStore(path)

	if _, err := classifier.Update(ctx, classifier.Config{Store: store}, func(clf *classifier.Classifier) error {
		return clf.Assign([]float32{1, 0}, "cat")
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	_, err := classifier.Update(ctx, classifier.Config{Store: store}, func(clf *classifier.Classifier) error {
		return clf.RemoveClass("dog")
	})
	if !errors.Is(err, classifier.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Classes) != 1 || snap.Classes[0].Label != "cat" {
		t.Errorf("Unexpected table: %+v", snap)
	}
}

func TestUpdate_PlainStore(t *testing.T) {
	store := &testutil.MockStore{
		LoadFunc: func(ctx context.Context) (*classifier.Snapshot, error) {
			return &classifier.Snapshot{Dimension: 2, Classes: []classifier.Class{{Label: "a", Centroid: []float64{1, 0}, Count: 1}}}, nil
		},
	}

	clf, err := classifier.Update(context.Background(), classifier.Config{Store: store}, func(clf *classifier.Classifier) error {
		return clf.Assign([]float32{3, 0}, "a")
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if store.LoadCount != 1 || store.SaveCount != 1 {
		t.Errorf("Expected one load and one save, got %d/%d", store.LoadCount, store.SaveCount)
	}
	if got := store.LastSaved.Classes[0]; got.Count != 2 || got.Centroid[0] != 2 {
		t.Errorf("Unexpected saved class: %+v", got)
	}
	if class, _ := clf.Class("a"); class.Count != 2 {
		t.Errorf("Expected returned classifier to hold the saved table, got %+v", class)
	}

	if _, err := classifier.Update(context.Background(), classifier.Config{}, func(*classifier.Classifier) error { return nil }); !errors.Is(err, classifier.ErrNoStore) {
		t.Errorf("Expected ErrNoStore, got %v", err)
	}
}
