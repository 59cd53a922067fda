package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeThresholds(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizePinecone()
	c.normalizeVoyage()
	if err := c.normalizeUnknown(); err != nil {
		return err
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	if c.Classifier.TopK <= 0 {
		c.Classifier.TopK = Default().Classifier.TopK
	}
	return nil
}

func (c *Config) normalizeThresholds() error {
	var err error
	if c.Thresholds.File, err = expandPath(strings.TrimSpace(c.Thresholds.File)); err != nil {
		return fmt.Errorf("thresholds.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}

	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case BackendFile:
			c.Store.Path = filepath.Join(defaultDataDir, defaultFileStoreName)
		case BackendSQLite:
			c.Store.Path = filepath.Join(defaultDataDir, defaultSQLiteStoreName)
		}
	}

	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizePinecone() {
	c.Pinecone.APIKey = strings.TrimSpace(c.Pinecone.APIKey)
	if c.Pinecone.APIKey == "" {
		if value, ok := os.LookupEnv("PINECONE_API_KEY"); ok {
			c.Pinecone.APIKey = strings.TrimSpace(value)
		}
	}
	c.Pinecone.Host = strings.TrimSpace(c.Pinecone.Host)
	if c.Pinecone.Host == "" {
		if value, ok := os.LookupEnv("PINECONE_HOST"); ok {
			c.Pinecone.Host = strings.TrimSpace(value)
		}
	}
	c.Pinecone.Namespace = strings.TrimSpace(c.Pinecone.Namespace)
	if c.Pinecone.Namespace == "" {
		c.Pinecone.Namespace = defaultPineconeNamespace
	}
}

func (c *Config) normalizeVoyage() {
	c.Voyage.APIKey = strings.TrimSpace(c.Voyage.APIKey)
	if c.Voyage.APIKey == "" {
		if value, ok := os.LookupEnv("VOYAGEAI_API_KEY"); ok {
			c.Voyage.APIKey = strings.TrimSpace(value)
		}
	}
	c.Voyage.Model = strings.TrimSpace(c.Voyage.Model)
	if c.Voyage.Model == "" {
		c.Voyage.Model = defaultVoyageModel
	}
	if c.Voyage.Dimensions == 0 {
		c.Voyage.Dimensions = defaultVoyageDimensions
	}
	c.Voyage.InputType = strings.ToLower(strings.TrimSpace(c.Voyage.InputType))
}

func (c *Config) normalizeUnknown() error {
	c.Unknown.Path = strings.TrimSpace(c.Unknown.Path)
	if c.Unknown.Path == "" {
		c.Unknown.Path = filepath.Join(defaultDataDir, defaultUnknownStoreName)
	}

	var err error
	if c.Unknown.Path, err = expandPath(c.Unknown.Path); err != nil {
		return fmt.Errorf("unknown.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "text", "console":
		c.Logging.Format = defaultLogFormat
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}
