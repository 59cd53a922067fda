package config

import classifier "github.com/FrenchMajesty/openworld-classifier"

const (
	defaultConfigPath        = "~/.config/openworld-classifier/config.toml"
	defaultProjectConfig     = "classifier.toml"
	defaultDataDir           = "~/.local/share/openworld-classifier"
	defaultFileStoreName     = "centroids.json"
	defaultSQLiteStoreName   = "centroids.db"
	defaultUnknownStoreName  = "unknown.db"
	defaultStoreBackend      = BackendFile
	defaultPineconeNamespace = "classes"
	defaultVoyageModel       = "voyage-3.5-lite"
	defaultVoyageDimensions  = 1024
	defaultClusterSimilarity = 0.55
	defaultLogFormat         = "text"
	defaultLogLevel          = "info"
)

// Store backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPinecone = "pinecone"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Classifier: Classifier{
			TopK: classifier.DefaultTopK,
		},
		Thresholds: Thresholds{
			MinTop1Confidence: classifier.DefaultMinTop1Confidence,
			MinTop1Similarity: classifier.DefaultMinTop1Similarity,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Pinecone: Pinecone{
			Namespace: defaultPineconeNamespace,
		},
		Voyage: Voyage{
			Model:      defaultVoyageModel,
			Dimensions: defaultVoyageDimensions,
		},
		Unknown: Unknown{
			ClusterSimilarity: defaultClusterSimilarity,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
