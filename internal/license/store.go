package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// snapshot is the persisted document: the entire mapping, serialized whole
// after every mutation.
type snapshot struct {
	Licenses map[string]*Record `json:"licenses"`
}

// Store is the durable, crash-recoverable mapping from license key to Record.
// It is the sole owner and writer of the snapshot file; all mutations run
// under a single write lock covering the whole read-modify-persist sequence,
// so concurrent verifications can never interleave into a half-applied
// record or overshoot a device limit.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	records map[string]*Record
}

// Open loads the snapshot at path, creating the store's directory if needed.
// A missing or unparseable snapshot is replaced with an empty mapping and
// persisted immediately; only a failure to write that initial snapshot is
// returned as an error.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		logger:  logger.With(slog.String("component", "license_store")),
		records: make(map[string]*Record),
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "mkdir", Err: err}
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.logger.Info("no snapshot found, starting empty",
			slog.String("path", path))
	case err != nil:
		// Unreadable is treated like corrupt: reset rather than refuse
		// to start.
		s.logger.Warn("snapshot unreadable, resetting to empty store",
			slog.String("path", path),
			slog.String("error", err.Error()))
	default:
		var snap snapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr != nil || snap.Licenses == nil {
			s.logger.Warn("snapshot corrupt, resetting to empty store",
				slog.String("path", path),
				slog.Int("size_bytes", len(data)))
		} else {
			s.records = snap.Licenses
			for key, rec := range s.records {
				if rec == nil {
					s.logger.Warn("dropping null record from snapshot",
						slog.String("key", key))
					delete(s.records, key)
					continue
				}
				if rec.Expiry.IsZero() {
					s.logger.Warn("record has no expiry, verification will report it expired",
						slog.String("key", key))
				}
			}
			s.logger.Info("snapshot loaded",
				slog.String("path", path),
				slog.Int("licenses", len(s.records)))
			return s, nil
		}
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a deep copy of the record for key.
func (s *Store) Get(key string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	cp := rec.Clone()
	cp.Key = key
	return cp, true
}

// List returns deep copies of every record. Order is unspecified.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for key, rec := range s.records {
		cp := rec.Clone()
		cp.Key = key
		out = append(out, cp)
	}
	return out
}

// Insert adds a new record under key with strict-insert semantics: an
// existing record is never overwritten. The insert is durable before Insert
// returns nil.
func (s *Store) Insert(key string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[key]; exists {
		return ErrAlreadyExists
	}
	s.records[key] = rec.Clone()
	if err := s.persistLocked(); err != nil {
		delete(s.records, key)
		return err
	}
	return nil
}

// Mutate atomically applies fn to the record for key and persists the
// result. fn receives a working copy and reports whether it changed the
// record; when it did, the change becomes visible and durable together, or
// not at all (a failed write rolls the record back and returns the
// PersistenceError). Returns ErrNotFound when the key is absent.
func (s *Store) Mutate(key string, fn func(*Record) (dirty bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	working := rec.Clone()
	working.Key = key
	dirty, err := fn(working)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	working.Key = ""
	s.records[key] = working
	if err := s.persistLocked(); err != nil {
		s.records[key] = rec
		return err
	}
	return nil
}

// Delete removes the record for key. Deleting an absent key is a no-op and
// does not touch the snapshot.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	delete(s.records, key)
	if err := s.persistLocked(); err != nil {
		s.records[key] = rec
		return err
	}
	return nil
}

// persistLocked serializes the whole mapping and replaces the snapshot file
// via write-to-temp-then-rename, so readers of the backing file (including a
// restarted process after a crash) only ever observe a complete document.
// Callers must hold the write lock.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(snapshot{Licenses: s.records}, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "marshal", Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "rename", Err: err}
	}
	return nil
}

// String implements fmt.Stringer for logging.
func (s *Store) String() string {
	return fmt.Sprintf("license.Store(%s, %d records)", s.path, s.Len())
}
