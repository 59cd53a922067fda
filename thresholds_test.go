package classifier_test

import (
	"os"
	"path/filepath"
	"testing"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

func TestLoadThresholds(t *testing.T) {
	defaults := classifier.DefaultThresholds()

	tests := []struct {
		name      string
		content   *string
		want      classifier.Thresholds
		rewritten bool
	}{
		{
			name:      "missing file writes defaults",
			content:   nil,
			want:      defaults,
			rewritten: true,
		},
		{
			name:    "full file",
			content: ptr(`{"min_top1_confidence": 0.7, "min_top1_similarity": 0.2}`),
			want:    classifier.Thresholds{MinTop1Confidence: 0.7, MinTop1Similarity: 0.2},
		},
		{
			name:    "partial file falls back per field",
			content: ptr(`{"min_top1_similarity": 0.6}`),
			want:    classifier.Thresholds{MinTop1Confidence: defaults.MinTop1Confidence, MinTop1Similarity: 0.6},
		},
		{
			name:      "corrupted file is replaced",
			content:   ptr(`not json`),
			want:      defaults,
			rewritten: true,
		},
		{
			name:      "out of range values are replaced",
			content:   ptr(`{"min_top1_confidence": 3}`),
			want:      defaults,
			rewritten: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "thresholds.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0644); err != nil {
					t.Fatalf("Failed to write file: %v", err)
				}
			}

			got, err := classifier.LoadThresholds(path, defaults)
			if err != nil {
				t.Fatalf("LoadThresholds failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("LoadThresholds() = %+v, want %+v", got, tt.want)
			}

			if tt.rewritten {
				again, err := classifier.LoadThresholds(path, classifier.Thresholds{})
				if err != nil {
					t.Fatalf("second LoadThresholds failed: %v", err)
				}
				if again != defaults {
					t.Errorf("Expected defaults to be persisted, got %+v", again)
				}
			}
		})
	}
}

func TestThresholds_Validate(t *testing.T) {
	valid := []classifier.Thresholds{
		{MinTop1Confidence: 0, MinTop1Similarity: -1},
		{MinTop1Confidence: 1, MinTop1Similarity: 1},
		classifier.DefaultThresholds(),
	}
	for _, th := range valid {
		if err := th.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", th, err)
		}
	}

	invalid := []classifier.Thresholds{
		{MinTop1Confidence: -0.1},
		{MinTop1Confidence: 1.1},
		{MinTop1Similarity: -1.5},
		{MinTop1Similarity: 1.01},
	}
	for _, th := range invalid {
		if err := th.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", th)
		}
	}
}

func ptr(s string) *string {
	return &s
}
