package benchmark

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DatasetItem is one labelled embedding
type DatasetItem struct {
	Label     string
	Embedding []float32
}

// LoadDataset reads a CSV file with a header row naming a "label" column and
// an "embedding" column holding a JSON array. A positive limit keeps only the
// first limit rows.
func LoadDataset(path string, limit int) ([]DatasetItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("dataset file must have at least a header and one row")
	}

	labelCol, embeddingCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "label":
			labelCol = i
		case "embedding":
			embeddingCol = i
		}
	}
	if labelCol < 0 || embeddingCol < 0 {
		return nil, fmt.Errorf("dataset header must name label and embedding columns, got %v", records[0])
	}

	dataset := make([]DatasetItem, 0, len(records)-1)
	for row, record := range records[1:] {
		var embedding []float32
		if err := json.Unmarshal([]byte(record[embeddingCol]), &embedding); err != nil {
			return nil, fmt.Errorf("row %d: invalid embedding: %w", row+2, err)
		}
		label := strings.TrimSpace(record[labelCol])
		if label == "" {
			return nil, fmt.Errorf("row %d: empty label", row+2)
		}
		dataset = append(dataset, DatasetItem{Label: label, Embedding: embedding})
	}

	return trimDataset(dataset, limit), nil
}

// trimDataset trims the dataset to the specified limit
func trimDataset(dataset []DatasetItem, limit int) []DatasetItem {
	if limit > 0 && len(dataset) > limit {
		return dataset[:limit]
	}
	return dataset
}
