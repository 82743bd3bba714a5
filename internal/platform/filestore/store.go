// Package filestore implements the storage adapter on top of one JSON file
// per kind. Files hold a single object with a "records" array and are
// replaced atomically (write temp, fsync, rename) on every save.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/store"
)

// Compile-time check that Store satisfies store.Adapter.
var _ store.Adapter = (*Store)(nil)

var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// document is the on-disk layout of one collection file.
type document struct {
	Records []domain.Record `json:"records"`
}

// Store is a file-backed store.Adapter.
type Store struct {
	dir    string
	seeds  map[string][]domain.Record
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // one per kind, serializes read-modify-write
}

// New creates a Store rooted at dir, creating the directory when needed.
// seeds provides the initial records written the first time a kind is loaded.
func New(dir string, seeds map[string][]domain.Record, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for filestore")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{
		dir:    dir,
		seeds:  seeds,
		logger: logger.With(slog.String("component", "filestore")),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Load implements store.Adapter. An absent file is created from the kind's
// seed records, which are then returned.
func (s *Store) Load(ctx context.Context, kind string) (*store.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(kind)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(kind)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.read(path)
	if errors.Is(err, fs.ErrNotExist) {
		records = cloneAll(s.seeds[kind])
		if err := s.write(path, records); err != nil {
			return nil, store.StorageFailure(kind, "seed", err)
		}
		s.logger.Info("created collection file",
			slog.String("kind", kind),
			slog.Int("seed_records", len(records)))
		return store.NewCollection(kind, records), nil
	}
	if err != nil {
		return nil, store.StorageFailure(kind, "load", err)
	}

	return store.NewCollection(kind, records), nil
}

// Save implements store.Adapter. The file is re-read under the kind's lock so
// that changes are checked against what is on disk, not against the caller's
// snapshot.
func (s *Store) Save(_ context.Context, c *store.Collection) error {
	changes := c.Changes()
	if changes.Empty() {
		return nil
	}
	path, err := s.path(c.Kind)
	if err != nil {
		return err
	}

	lock := s.lockFor(c.Kind)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return store.StorageFailure(c.Kind, "save", err)
	}

	current := store.NewCollection(c.Kind, records)
	if err := current.Apply(changes); err != nil {
		return err
	}

	if err := s.write(path, current.Records); err != nil {
		return store.StorageFailure(c.Kind, "save", err)
	}
	return nil
}

// Close implements store.Adapter.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(kind string) (string, error) {
	if !kindPattern.MatchString(kind) {
		return "", store.NewStoreError(kind, "resolve", "invalid collection name", store.ErrInvalidEntity)
	}
	return filepath.Join(s.dir, kind+".json"), nil
}

func (s *Store) lockFor(kind string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[kind]
	if !ok {
		l = &sync.Mutex{}
		s.locks[kind] = l
	}
	return l
}

func (s *Store) read(path string) ([]domain.Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if doc.Records == nil {
		doc.Records = []domain.Record{}
	}
	return doc.Records, nil
}

// write replaces path atomically. On any failure the previous file is left intact.
func (s *Store) write(path string, records []domain.Record) error {
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.MarshalIndent(document{Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

// syncDir flushes a directory entry so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return d.Close()
}

func cloneAll(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
