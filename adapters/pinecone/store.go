package pinecone

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	classifier "github.com/FrenchMajesty/openworld-classifier"
	"github.com/FrenchMajesty/openworld-classifier/internal/retry"
	"github.com/FrenchMajesty/openworld-classifier/internal/vecmath"
)

const (
	// idPrefix marks class vectors so the store can list them inside a shared namespace
	idPrefix = "class#"

	// batchSize bounds the vectors sent per upsert/fetch/delete call
	batchSize = 100
)

// Store implements classifier.Store by mirroring every class centroid as a
// Pinecone vector. Centroids are stored as float32, so a reload carries
// float32 precision.
type Store struct {
	index  index
	closer func() error
	retry  retry.Options
}

// Options configures a Store
type Options struct {
	Retry  retry.Config
	Logger *slog.Logger
}

// NewStore connects to a Pinecone index. Nil apiKey/host fall back to the
// PINECONE_API_KEY and PINECONE_HOST environment variables.
func NewStore(apiKey *string, host *string, namespace string, opts Options) (*Store, error) {
	key, err := loadEnvVar(apiKey, "PINECONE_API_KEY")
	if err != nil {
		return nil, err
	}

	h, err := loadEnvVar(host, "PINECONE_HOST")
	if err != nil {
		return nil, err
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: *key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	conn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      *h,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}

	store := newStore(conn, opts)
	store.closer = conn.Close
	return store, nil
}

func newStore(idx index, opts Options) *Store {
	cfg := opts.Retry
	if cfg.MaxRetries == 0 && cfg.BaseDelay == 0 {
		cfg = retry.DefaultConfig()
	}
	return &Store{
		index: idx,
		retry: retry.Options{
			Config:  cfg,
			Logger:  opts.Logger,
			APIName: "Pinecone",
		},
	}
}

// Close releases the index connection
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Load lists every class vector and rebuilds the class table in registration
// order. Returns nil when the namespace holds no classes.
func (s *Store) Load(ctx context.Context) (*classifier.Snapshot, error) {
	ids, err := s.listIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	type positioned struct {
		class    classifier.Class
		position int
	}
	entries := make([]positioned, 0, len(ids))

	for start := 0; start < len(ids); start += batchSize {
		batch := ids[start:min(start+batchSize, len(ids))]
		resp, err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) (*pinecone.FetchVectorsResponse, error) {
			return s.index.FetchVectors(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch class vectors: %w", err)
		}

		for id, vec := range resp.Vectors {
			if vec == nil || vec.Metadata == nil {
				return nil, fmt.Errorf("class vector %s missing metadata", id)
			}
			fields := vec.Metadata.GetFields()
			label := fields["label"].GetStringValue()
			if label == "" {
				return nil, fmt.Errorf("class vector %s missing label metadata", id)
			}
			entries = append(entries, positioned{
				class: classifier.Class{
					Label:    label,
					Centroid: vecmath.ToFloat64(vec.Values),
					Count:    int(fields["count"].GetNumberValue()),
				},
				position: int(fields["position"].GetNumberValue()),
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].position < entries[j].position
	})

	snap := &classifier.Snapshot{Classes: make([]classifier.Class, len(entries))}
	for i, e := range entries {
		snap.Classes[i] = e.class
	}
	snap.Dimension = len(snap.Classes[0].Centroid)
	return snap, nil
}

// Save upserts every class and deletes vectors of classes no longer present
func (s *Store) Save(ctx context.Context, snap *classifier.Snapshot) error {
	keep := make(map[string]bool, len(snap.Classes))
	vectors := make([]*pinecone.Vector, 0, len(snap.Classes))

	for i, class := range snap.Classes {
		metadata, err := structpb.NewStruct(map[string]any{
			"label":    class.Label,
			"count":    class.Count,
			"position": i,
		})
		if err != nil {
			return fmt.Errorf("failed to build metadata for %q: %w", class.Label, err)
		}

		id := vectorID(class.Label)
		keep[id] = true
		vectors = append(vectors, &pinecone.Vector{
			Id:       id,
			Values:   vecmath.ToFloat32(class.Centroid),
			Metadata: metadata,
		})
	}

	for start := 0; start < len(vectors); start += batchSize {
		batch := vectors[start:min(start+batchSize, len(vectors))]
		if _, err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) (uint32, error) {
			return s.index.UpsertVectors(ctx, batch)
		}); err != nil {
			return fmt.Errorf("failed to upsert class vectors: %w", err)
		}
	}

	existing, err := s.listIDs(ctx)
	if err != nil {
		return err
	}
	stale := make([]string, 0)
	for _, id := range existing {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	for start := 0; start < len(stale); start += batchSize {
		batch := stale[start:min(start+batchSize, len(stale))]
		if _, err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) (struct{}, error) {
			return struct{}{}, s.index.DeleteVectorsById(ctx, batch)
		}); err != nil {
			return fmt.Errorf("failed to delete stale class vectors: %w", err)
		}
	}
	return nil
}

// listIDs pages through every vector id carrying the class prefix
func (s *Store) listIDs(ctx context.Context) ([]string, error) {
	prefix := idPrefix
	limit := uint32(batchSize)
	var token *string
	ids := make([]string, 0)

	for {
		req := &pinecone.ListVectorsRequest{
			Prefix:          &prefix,
			Limit:           &limit,
			PaginationToken: token,
		}
		resp, err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) (*pinecone.ListVectorsResponse, error) {
			return s.index.ListVectors(ctx, req)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list class vectors: %w", err)
		}

		for _, id := range resp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if resp.NextPaginationToken == nil || *resp.NextPaginationToken == "" {
			return ids, nil
		}
		token = resp.NextPaginationToken
	}
}

// vectorID derives a stable ASCII id for a label
func vectorID(label string) string {
	sum := sha1.Sum([]byte(label))
	return idPrefix + hex.EncodeToString(sum[:])
}

// loadEnvVar loads an environment variable into a pointer if no value is provided
func loadEnvVar(target *string, envKey string) (*string, error) {
	if target == nil {
		envVar := os.Getenv(envKey)
		if envVar == "" {
			return nil, fmt.Errorf("%s environment variable not set and no value provided", envKey)
		}
		return &envVar, nil
	}
	return target, nil
}
