package testutil

import (
	"context"
	"sync"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

// MockStore is a mock implementation of classifier.Store for testing
type MockStore struct {
	LoadFunc func(ctx context.Context) (*classifier.Snapshot, error)
	SaveFunc func(ctx context.Context, snap *classifier.Snapshot) error

	mu        sync.Mutex
	LoadCount int
	SaveCount int
	LastSaved *classifier.Snapshot
}

func (m *MockStore) Load(ctx context.Context) (*classifier.Snapshot, error) {
	m.mu.Lock()
	m.LoadCount++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}

	// Default: nothing persisted yet
	return nil, nil
}

func (m *MockStore) Save(ctx context.Context, snap *classifier.Snapshot) error {
	m.mu.Lock()
	m.SaveCount++
	m.LastSaved = snap
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, snap)
	}

	return nil
}

// MockEmbeddingClient is a mock text embedder for testing
type MockEmbeddingClient struct {
	GenerateEmbeddingFunc func(ctx context.Context, text string) ([]float32, error)
	mu                    sync.Mutex
	CallCount             int
	LastText              string
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastText = text
	m.mu.Unlock()

	if m.GenerateEmbeddingFunc != nil {
		return m.GenerateEmbeddingFunc(ctx, text)
	}
	// Default: return a simple embedding based on text length
	embedding := make([]float32, 10)
	for i := range embedding {
		embedding[i] = float32(len(text)) / 100.0
	}
	return embedding, nil
}

// MockAssigner records assignments and can fail on demand
type MockAssigner struct {
	AssignFunc func(embedding []float32, label string) error

	mu          sync.Mutex
	Assignments []Assignment
}

// Assignment is one recorded MockAssigner call
type Assignment struct {
	Embedding []float32
	Label     string
}

func (m *MockAssigner) Assign(embedding []float32, label string) error {
	if m.AssignFunc != nil {
		if err := m.AssignFunc(embedding, label); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.Assignments = append(m.Assignments, Assignment{Embedding: embedding, Label: label})
	m.mu.Unlock()
	return nil
}
