package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

//go:embed sample_config.toml
var sampleConfig string

// Classifier contains settings for the centroid classifier itself.
type Classifier struct {
	// Dimension fixes the embedding length up front. 0 lets the first
	// assigned embedding fix it.
	Dimension int `toml:"dimension"`
	TopK      int `toml:"top_k"`
}

// Thresholds contains the known/unknown gates. When File is set, the gates
// are read from that JSON file instead, falling back to these values.
type Thresholds struct {
	MinTop1Confidence float64 `toml:"min_top1_confidence"`
	MinTop1Similarity float64 `toml:"min_top1_similarity"`
	File              string  `toml:"file"`
}

// Store selects where the class table is persisted.
type Store struct {
	Backend string `toml:"backend"` // file, sqlite or pinecone
	Path    string `toml:"path"`    // file and sqlite only
}

// Pinecone contains connection settings for the pinecone backend.
type Pinecone struct {
	APIKey    string `toml:"api_key"`
	Host      string `toml:"host"`
	Namespace string `toml:"namespace"`
}

// Voyage contains settings for text embeddings.
type Voyage struct {
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	InputType  string `toml:"input_type"` // "", query or document
}

// Unknown contains settings for the unknown bucket.
type Unknown struct {
	ClusterSimilarity float64 `toml:"cluster_similarity"`
	Path              string  `toml:"path"` // SQLite database holding pending samples
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"` // text or json
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values.
//
// Configuration sections by subsystem:
//   - Classifier: embedding dimension and ranked candidates per result
//   - Thresholds: confidence and similarity gates
//   - Store: class table persistence backend
//   - Pinecone: vector database connection for the pinecone backend
//   - Voyage: text embedding model
//   - Unknown: provisional clustering of rejected samples
//   - Logging: log format, level, and optional file
type Config struct {
	Classifier Classifier `toml:"classifier"`
	Thresholds Thresholds `toml:"thresholds"`
	Store      Store      `toml:"store"`
	Pinecone   Pinecone   `toml:"pinecone"`
	Voyage     Voyage     `toml:"voyage"`
	Unknown    Unknown    `toml:"unknown"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults. Returns the config, the resolved path and whether the
// file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfig)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// ClassifierThresholds returns the configured gates.
func (c *Config) ClassifierThresholds() classifier.Thresholds {
	return classifier.Thresholds{
		MinTop1Confidence: c.Thresholds.MinTop1Confidence,
		MinTop1Similarity: c.Thresholds.MinTop1Similarity,
	}
}

// EnsureDirectories creates the directories the configured stores and log
// file live in.
func (c *Config) EnsureDirectories() error {
	dirs := make([]string, 0, 3)
	if c.Store.Backend != BackendPinecone {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Unknown.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Unknown.Path))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
