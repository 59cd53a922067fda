package classifier

// Reason explains a classification outcome
type Reason string

const (
	// ReasonOK means the top-1 class passed both thresholds
	ReasonOK Reason = "ok"

	// ReasonNoClasses means the class table is empty
	ReasonNoClasses Reason = "no_classes"

	// ReasonLowConfidence means the top-1 confidence fell below MinTop1Confidence
	ReasonLowConfidence Reason = "low_confidence"

	// ReasonLowSimilarity means the top-1 similarity fell below MinTop1Similarity
	ReasonLowSimilarity Reason = "low_similarity"
)

// Prediction is one ranked candidate class for an embedding
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Similarity float64 `json:"similarity"`
}

// Result represents the classification result
type Result struct {
	// Known is false when the embedding was rejected to the Unknown state
	Known bool

	// Label is the top-1 class when Known, empty otherwise
	Label string

	// Confidence is the top-1 confidence (0 when the class table is empty)
	Confidence float64

	// Similarity is the top-1 cosine similarity (0 when the class table is empty)
	Similarity float64

	// Reason explains why the embedding was accepted or rejected
	Reason Reason

	// TopK holds the best ranked candidates, for both outcomes, so callers can
	// offer "existing class" choices when resolving an Unknown
	TopK []Prediction
}

// Unknown reports whether the result is the Unknown marker
func (r Result) Unknown() bool {
	return !r.Known
}

// Class is a read-only copy of one class table entry
type Class struct {
	Label    string    `json:"label"`
	Centroid []float64 `json:"centroid"`
	Count    int       `json:"count"`
}

// Snapshot is the serialisable class table. Classes are in registration order.
type Snapshot struct {
	Dimension int     `json:"dimension"`
	Classes   []Class `json:"classes"`
}

// Metrics provides statistics about the classifier's state
type Metrics struct {
	// Classes is the number of registered classes
	Classes int

	// Samples is the total number of assignments across all classes
	Samples int

	// Dimension is the fixed embedding length, 0 until the first assignment
	Dimension int

	// Classifications is the number of successful Classify calls
	Classifications int64

	// Unknowns is the number of Classify calls that ended Unknown
	Unknowns int64

	// UnknownRate is the percentage of classifications that ended Unknown
	UnknownRate float32
}
