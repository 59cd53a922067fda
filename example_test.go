package classifier_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

// Example shows basic usage of the classifier
func Example_basic() {
	clf, err := classifier.New(classifier.Config{})
	if err != nil {
		log.Fatal(err)
	}

	// Teach two classes
	_ = clf.Assign([]float32{0.9, 0.1, 0.0}, "cat")
	_ = clf.Assign([]float32{0.8, 0.2, 0.1}, "cat")
	_ = clf.Assign([]float32{0.0, 0.1, 0.9}, "dog")

	result, err := clf.Classify([]float32{0.85, 0.15, 0.05})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Known: %v, Label: %s\n", result.Known, result.Label)

	result, _ = clf.Classify([]float32{0.5, 0.1, 0.5})
	fmt.Printf("Known: %v, Reason: %s\n", result.Known, result.Reason)

	// Output:
	// Known: true, Label: cat
	// Known: false, Reason: low_confidence
}

// Example shows persisting the class table to a JSON file
func Example_fileStore() {
	dir, err := os.MkdirTemp("", "centroids")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := classifier.NewFileStore(filepath.Join(dir, "centroids.json"))
	clf, err := classifier.New(classifier.Config{Store: store})
	if err != nil {
		log.Fatal(err)
	}
	_ = clf.Assign([]float32{1, 0}, "left")

	// Close saves the class table
	if err := clf.Close(context.Background()); err != nil {
		log.Fatal(err)
	}

	reopened, err := classifier.New(classifier.Config{Store: store})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(reopened.Labels())

	// Output:
	// [left]
}
