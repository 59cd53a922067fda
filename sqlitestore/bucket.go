package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/FrenchMajesty/openworld-classifier/unknown"
)

const (
	bucketDimensionKey = "unknown_dimension"
	bucketNextIDKey    = "unknown_next_id"
)

// LoadBucket reads the unknown bucket. Returns nil when nothing has been
// saved yet.
func (s *Store) LoadBucket(ctx context.Context) (*unknown.State, error) {
	return loadBucket(ctx, s.db)
}

// SaveBucket replaces the stored unknown bucket in a single transaction.
func (s *Store) SaveBucket(ctx context.Context, st *unknown.State) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = saveBucket(ctx, tx, st); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateBucket reads, modifies and rewrites the unknown bucket inside one
// IMMEDIATE transaction.
func (s *Store) UpdateBucket(ctx context.Context, fn func(*unknown.State) (*unknown.State, error)) error {
	return s.immediate(ctx, func(q querier) error {
		st, err := loadBucket(ctx, q)
		if err != nil {
			return err
		}
		next, err := fn(st)
		if err != nil {
			return err
		}
		return saveBucket(ctx, q, next)
	})
}

func readMetaInt(ctx context.Context, q querier, key string) (int, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", key, err)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s %q: %w", key, value, err)
	}
	return n, true, nil
}

func writeMetaInt(ctx context.Context, q querier, key string, value int) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, strconv.Itoa(value),
	); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func loadBucket(ctx context.Context, q querier) (*unknown.State, error) {
	dimension, ok, err := readMetaInt(ctx, q, bucketDimensionKey)
	if err != nil || !ok {
		return nil, err
	}
	nextID, _, err := readMetaInt(ctx, q, bucketNextIDKey)
	if err != nil {
		return nil, err
	}

	st := &unknown.State{
		Dimension: dimension,
		NextID:    nextID,
		Samples:   []unknown.Sample{},
		Clusters:  []unknown.ClusterState{},
	}

	clusterRows, err := q.QueryContext(ctx, `SELECT id, name, centroid, root FROM unknown_clusters ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query unknown clusters: %w", err)
	}
	defer clusterRows.Close()
	for clusterRows.Next() {
		var (
			cs          unknown.ClusterState
			centroidStr string
		)
		if err := clusterRows.Scan(&cs.ID, &cs.Name, &centroidStr, &cs.Root); err != nil {
			return nil, fmt.Errorf("scan unknown cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(centroidStr), &cs.Centroid); err != nil {
			return nil, fmt.Errorf("decode centroid for %s: %w", cs.ID, err)
		}
		st.Clusters = append(st.Clusters, cs)
	}
	if err := clusterRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unknown clusters: %w", err)
	}
	_ = clusterRows.Close()

	sampleRows, err := q.QueryContext(ctx, `SELECT id, embedding, source, added_at, cluster_id FROM unknown_samples ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query unknown samples: %w", err)
	}
	defer sampleRows.Close()
	for sampleRows.Next() {
		var (
			sample       unknown.Sample
			embeddingStr string
			addedAt      string
		)
		if err := sampleRows.Scan(&sample.ID, &embeddingStr, &sample.Source, &addedAt, &sample.ClusterID); err != nil {
			return nil, fmt.Errorf("scan unknown sample: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingStr), &sample.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", sample.ID, err)
		}
		if sample.AddedAt, err = time.Parse(time.RFC3339Nano, addedAt); err != nil {
			return nil, fmt.Errorf("parse added_at for %s: %w", sample.ID, err)
		}
		st.Samples = append(st.Samples, sample)
	}
	if err := sampleRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unknown samples: %w", err)
	}
	return st, nil
}

func saveBucket(ctx context.Context, q querier, st *unknown.State) error {
	for _, stmt := range []string{`DELETE FROM unknown_samples`, `DELETE FROM unknown_clusters`} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear unknown bucket: %w", err)
		}
	}

	for i, cs := range st.Clusters {
		centroidJSON, err := json.Marshal(cs.Centroid)
		if err != nil {
			return fmt.Errorf("encode centroid for %s: %w", cs.ID, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO unknown_clusters(id, position, name, centroid, root) VALUES(?, ?, ?, ?, ?)`,
			cs.ID, i, cs.Name, string(centroidJSON), cs.Root,
		); err != nil {
			return fmt.Errorf("insert unknown cluster %s: %w", cs.ID, err)
		}
	}
	for i, sample := range st.Samples {
		embeddingJSON, err := json.Marshal(sample.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding for %s: %w", sample.ID, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO unknown_samples(id, position, embedding, source, added_at, cluster_id) VALUES(?, ?, ?, ?, ?, ?)`,
			sample.ID, i, string(embeddingJSON), sample.Source, sample.AddedAt.UTC().Format(time.RFC3339Nano), sample.ClusterID,
		); err != nil {
			return fmt.Errorf("insert unknown sample %s: %w", sample.ID, err)
		}
	}

	if err := writeMetaInt(ctx, q, bucketDimensionKey, st.Dimension); err != nil {
		return err
	}
	return writeMetaInt(ctx, q, bucketNextIDKey, st.NextID)
}
