package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/adapters/pinecone"
	"github.com/FrenchMajesty/openworld-classifier/adapters/voyage"
	"github.com/FrenchMajesty/openworld-classifier/internal/config"
	"github.com/FrenchMajesty/openworld-classifier/internal/logging"
	"github.com/FrenchMajesty/openworld-classifier/sqlitestore"
	"github.com/FrenchMajesty/openworld-classifier/unknown"
)

// textEmbedder turns free text into an embedding
type textEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	newTextEmbedder func(cfg *config.Config, logger *slog.Logger) (textEmbedder, error)
}

// defaultTextEmbedder builds the embedder behind --text
var defaultTextEmbedder = newVoyageEmbedder

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag:      configFlag,
		newTextEmbedder: defaultTextEmbedder,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// thresholds resolves the gates from the thresholds file when one is
// configured, falling back to the values in the config.
func (c *commandContext) thresholds(cfg *config.Config) (classifier.Thresholds, error) {
	defaults := cfg.ClassifierThresholds()
	if cfg.Thresholds.File == "" {
		return defaults, nil
	}
	return classifier.LoadThresholds(cfg.Thresholds.File, defaults)
}

// classifierConfig builds the configured store and the classifier settings
// around it. The returned func releases the store.
func (c *commandContext) classifierConfig() (classifier.Config, func() error, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return classifier.Config{}, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return classifier.Config{}, nil, err
	}

	thresholds, err := c.thresholds(cfg)
	if err != nil {
		return classifier.Config{}, nil, fmt.Errorf("load thresholds: %w", err)
	}

	store, release, err := openStore(cfg, logger)
	if err != nil {
		return classifier.Config{}, nil, err
	}

	return classifier.Config{
		Thresholds: &thresholds,
		Dimension:  cfg.Classifier.Dimension,
		TopK:       cfg.Classifier.TopK,
		Store:      store,
		Logger:     logger,
	}, release, nil
}

// openClassifier returns a classifier loaded from the configured store for
// read-only commands. The returned func releases the store.
func (c *commandContext) openClassifier() (*classifier.Classifier, func() error, error) {
	clfCfg, release, err := c.classifierConfig()
	if err != nil {
		return nil, nil, err
	}
	clf, err := classifier.New(clfCfg)
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	return clf, release, nil
}

// updateClassifier applies fn to the stored class table as one locked
// read-modify-write and returns the classifier holding the saved result.
func (c *commandContext) updateClassifier(ctx context.Context, fn func(*classifier.Classifier) error) (*classifier.Classifier, error) {
	clfCfg, release, err := c.classifierConfig()
	if err != nil {
		return nil, err
	}
	defer release()

	return classifier.Update(ctx, clfCfg, fn)
}

// openBucket opens the SQLite database holding pending unknown samples
func (c *commandContext) openBucket() (*sqlitestore.Store, unknown.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, unknown.Config{}, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, unknown.Config{}, err
	}
	store, err := sqlitestore.Open(cfg.Unknown.Path)
	if err != nil {
		return nil, unknown.Config{}, fmt.Errorf("open unknown bucket: %w", err)
	}
	return store, unknown.Config{ClusterSimilarity: cfg.Unknown.ClusterSimilarity, Logger: logger}, nil
}

// loadBucket reads the persisted unknown bucket
func (c *commandContext) loadBucket(ctx context.Context) (*unknown.Bucket, error) {
	store, bucketCfg, err := c.openBucket()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return unknown.Load(ctx, bucketCfg, store)
}

// updateBucket applies fn to the persisted unknown bucket as one locked
// read-modify-write.
func (c *commandContext) updateBucket(ctx context.Context, fn func(*unknown.Bucket) error) (*unknown.Bucket, error) {
	store, bucketCfg, err := c.openBucket()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return unknown.Update(ctx, bucketCfg, store, fn)
}

// openStore builds the class table store for the configured backend
func openStore(cfg *config.Config, logger *slog.Logger) (classifier.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store.Backend {
	case config.BackendFile:
		return classifier.NewFileStore(cfg.Store.Path), noop, nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendPinecone:
		store, err := pinecone.NewStore(&cfg.Pinecone.APIKey, &cfg.Pinecone.Host, cfg.Pinecone.Namespace, pinecone.Options{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func newVoyageEmbedder(cfg *config.Config, logger *slog.Logger) (textEmbedder, error) {
	var key *string
	if cfg.Voyage.APIKey != "" {
		key = &cfg.Voyage.APIKey
	}
	return voyage.NewEmbedder(key, voyage.Options{
		Model:         cfg.Voyage.Model,
		Dimensions:    cfg.Voyage.Dimensions,
		EmbeddingType: voyage.VoyageEmbeddingType(cfg.Voyage.InputType),
		Logger:        logger,
	})
}
