package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultMinTop1Confidence is the default confidence gate for a known result
	DefaultMinTop1Confidence = 0.55

	// DefaultMinTop1Similarity is the default similarity gate for a known result
	DefaultMinTop1Similarity = 0.35
)

// Thresholds gate the known/unknown decision
type Thresholds struct {
	MinTop1Confidence float64 `json:"min_top1_confidence"`
	MinTop1Similarity float64 `json:"min_top1_similarity"`
}

// DefaultThresholds returns the default gates
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTop1Confidence: DefaultMinTop1Confidence,
		MinTop1Similarity: DefaultMinTop1Similarity,
	}
}

// Validate checks that confidence lies in [0,1] and similarity in [-1,1]
func (t Thresholds) Validate() error {
	if t.MinTop1Confidence < 0 || t.MinTop1Confidence > 1 {
		return fmt.Errorf("%w: min_top1_confidence %v outside [0,1]", ErrInvalidInput, t.MinTop1Confidence)
	}
	if t.MinTop1Similarity < -1 || t.MinTop1Similarity > 1 {
		return fmt.Errorf("%w: min_top1_similarity %v outside [-1,1]", ErrInvalidInput, t.MinTop1Similarity)
	}
	return nil
}

// LoadThresholds reads thresholds from a JSON file. A missing, unreadable or
// invalid file is replaced by defaults, which are written back and returned.
// Fields absent from the file take their default value.
func LoadThresholds(path string, defaults Thresholds) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, SaveThresholds(path, defaults)
	}

	var raw struct {
		MinTop1Confidence *float64 `json:"min_top1_confidence"`
		MinTop1Similarity *float64 `json:"min_top1_similarity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return defaults, SaveThresholds(path, defaults)
	}

	t := defaults
	if raw.MinTop1Confidence != nil {
		t.MinTop1Confidence = *raw.MinTop1Confidence
	}
	if raw.MinTop1Similarity != nil {
		t.MinTop1Similarity = *raw.MinTop1Similarity
	}
	if err := t.Validate(); err != nil {
		return defaults, SaveThresholds(path, defaults)
	}
	return t, nil
}

// SaveThresholds writes thresholds as indented JSON, creating parent directories
func SaveThresholds(path string, t Thresholds) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create thresholds directory: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write thresholds to file %s: %w", path, err)
	}
	return nil
}
