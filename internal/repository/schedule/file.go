package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Repository defines persistence operations for time rule firing state.
type Repository interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, lastFired map[string]time.Time) error
}

// stateFilePermissions restricts the state file to the owner.
const stateFilePermissions = 0o600

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("schedule state not found")

// document is the on-disk layout of the state file.
type document struct {
	// LastFired maps a time rule ID to the occurrence it last fired for.
	LastFired map[string]time.Time `yaml:"last_fired"`
}

// FileRepository persists last-fired timestamps to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the YAML state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the state from disk.
func (r *FileRepository) Load(_ context.Context) (map[string]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read schedule state: %w", err)
	}

	var doc document
	if err = yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode schedule state: %w", err)
	}

	if doc.LastFired == nil {
		doc.LastFired = make(map[string]time.Time)
	}

	return doc.LastFired, nil
}

// Save replaces the state on disk. The file is written to a temporary
// sibling first and renamed so a crash never leaves a truncated file.
func (r *FileRepository) Save(_ context.Context, lastFired map[string]time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(document{LastFired: lastFired})
	if err != nil {
		return fmt.Errorf("encode schedule state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary state file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write schedule state: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close schedule state: %w", err)
	}

	if err = os.Chmod(tmpName, stateFilePermissions); err != nil {
		return fmt.Errorf("chmod schedule state: %w", err)
	}

	if err = os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace schedule state: %w", err)
	}

	return nil
}
