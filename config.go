package classifier

import "log/slog"

// DefaultTopK is the number of ranked predictions returned with each result
const DefaultTopK = 5

// Config holds configuration for the Classifier
type Config struct {
	// Thresholds gate the known/unknown decision. If nil, uses DefaultThresholds.
	Thresholds *Thresholds

	// Dimension fixes the embedding length up front. If 0, the first assigned
	// embedding (or a loaded snapshot) fixes it.
	Dimension int

	// TopK bounds Result.TopK. If 0, uses DefaultTopK.
	TopK int

	// Store loads the class table on New and saves it on Save/Close. Optional.
	Store Store

	// Logger receives debug events for class table changes. If nil, logging is discarded.
	Logger *slog.Logger
}

// applyDefaults fills in default values for unset config fields
func (c *Config) applyDefaults() {
	if c.Thresholds == nil {
		t := DefaultThresholds()
		c.Thresholds = &t
	}

	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}
