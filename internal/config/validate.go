package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.ClassifierThresholds().Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateVoyage(); err != nil {
		return err
	}
	if err := c.validateUnknown(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateClassifier() error {
	if c.Classifier.Dimension < 0 {
		return errors.New("classifier.dimension must be non-negative")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the %s backend", c.Store.Backend)
		}
	case BackendPinecone:
		if c.Pinecone.APIKey == "" {
			return errors.New("pinecone.api_key is required for the pinecone backend. Set PINECONE_API_KEY or edit the config")
		}
		if c.Pinecone.Host == "" {
			return errors.New("pinecone.host is required for the pinecone backend. Set PINECONE_HOST or edit the config")
		}
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want file, sqlite or pinecone)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateVoyage() error {
	if c.Voyage.Dimensions <= 0 {
		return errors.New("voyage.dimensions must be positive")
	}
	switch c.Voyage.InputType {
	case "", "query", "document":
	default:
		return fmt.Errorf("voyage.input_type: unsupported value %q", c.Voyage.InputType)
	}
	return nil
}

func (c *Config) validateUnknown() error {
	if c.Unknown.ClusterSimilarity < -1 || c.Unknown.ClusterSimilarity > 1 {
		return errors.New("unknown.cluster_similarity must be between -1 and 1")
	}
	if c.Store.Backend != BackendPinecone && filepath.Clean(c.Unknown.Path) == filepath.Clean(c.Store.Path) {
		return errors.New("unknown.path must differ from store.path")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
