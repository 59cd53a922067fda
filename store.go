package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultStoreFilePath is the default location for class table persistence
const DefaultStoreFilePath = "./centroids.json"

// lockRetryDelay is how often a blocked FileStore retries its file lock
const lockRetryDelay = 50 * time.Millisecond

// Store handles loading and saving the class table. Load returns a nil
// snapshot when nothing has been persisted yet.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Updater is implemented by stores that can run a whole load, modify, save
// sequence under one exclusive lock. fn receives nil when nothing has been
// persisted yet; an error from fn leaves the stored table untouched.
type Updater interface {
	Update(ctx context.Context, fn func(*Snapshot) (*Snapshot, error)) error
}

// FileStore implements Store using a JSON file guarded by a lock file, so
// several processes can share one class table. Load and Save are each
// atomic; use Update (or the package-level Update) for read-modify-write.
type FileStore struct {
	filepath string
	lock     *flock.Flock
}

// NewFileStore creates a new file-based store handler
func NewFileStore(filepath string) *FileStore {
	return &FileStore{
		filepath: filepath,
		lock:     flock.New(filepath + ".lock"),
	}
}

// Path returns the JSON file location
func (f *FileStore) Path() string {
	return f.filepath
}

// Load reads the class table. If the file doesn't exist, returns nil.
func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(f.filepath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if _, err := f.lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", f.filepath, err)
	}
	defer f.lock.Unlock()

	return f.read()
}

// Save writes the class table atomically (temp file + rename)
func (f *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.filepath), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if _, err := f.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to lock %s: %w", f.filepath, err)
	}
	defer f.lock.Unlock()

	return f.write(snap)
}

// Update holds the exclusive lock while it reads the table, applies fn and
// writes the result back.
func (f *FileStore) Update(ctx context.Context, fn func(*Snapshot) (*Snapshot, error)) error {
	if err := os.MkdirAll(filepath.Dir(f.filepath), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if _, err := f.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to lock %s: %w", f.filepath, err)
	}
	defer f.lock.Unlock()

	snap, err := f.read()
	if err != nil {
		return err
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	return f.write(next)
}

// read decodes the JSON file (caller must hold the lock)
func (f *FileStore) read() (*Snapshot, error) {
	data, err := os.ReadFile(f.filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read class table from file %s: %w", f.filepath, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class table from file %s: %w", f.filepath, err)
	}
	return &snap, nil
}

// write replaces the JSON file through a temp file (caller must hold the lock)
func (f *FileStore) write(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal class table: %w", err)
	}

	dir := filepath.Dir(f.filepath)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.filepath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write class table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync class table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.filepath); err != nil {
		return fmt.Errorf("failed to write class table to file %s: %w", f.filepath, err)
	}
	return nil
}
