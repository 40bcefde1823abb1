package fingerprint

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
)

// FormatVersion is the on-disk cache schema version.
const FormatVersion = 1

// Store persists a Set between builds. It is the only state that crosses
// build boundaries.
type Store interface {
	// Load returns the persisted set, or an empty set when there is none.
	Load() (Set, error)
	// Save replaces the persisted set.
	Save(s Set) error
}

// cacheFile is the on-disk representation. Entries are written sorted so the
// file diffs cleanly between builds.
type cacheFile struct {
	Version   int         `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
	Entries   []cacheItem `json:"entries"`
}

type cacheItem struct {
	Source      string      `json:"source"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// FileStore is a JSON file-backed Store.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *FileStore) WithLogger(logger *slog.Logger) *FileStore {
	s.logger = logger
	return s
}

// Path returns the cache file location.
func (s *FileStore) Path() string { return s.path }

// Load implements Store. A cache that is missing, unreadable, corrupt or of
// another version is treated as empty, which forces a full rebuild.
func (s *FileStore) Load() (Set, error) {
	// #nosec G304 - path comes from the project configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("No fingerprint cache, starting empty", logfields.Path(s.path))
			return Set{}, nil
		}
		s.logger.Warn("Fingerprint cache is unreadable, starting empty", logfields.Path(s.path), logfields.Error(err))
		return Set{}, nil
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn("Fingerprint cache is corrupt, starting empty", logfields.Path(s.path), logfields.Error(err))
		return Set{}, nil
	}
	if file.Version != FormatVersion {
		s.logger.Warn("Fingerprint cache version mismatch, starting empty",
			logfields.Path(s.path),
			slog.Int("version", file.Version),
			slog.Int("expected", FormatVersion))
		return Set{}, nil
	}

	set := make(Set, len(file.Entries))
	for _, item := range file.Entries {
		if item.Source == "" || item.Fingerprint == "" {
			continue
		}
		set[item.Source] = item.Fingerprint
	}
	return set, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(set Set) error {
	file := cacheFile{
		Version:   FormatVersion,
		UpdatedAt: time.Now().UTC(),
		Entries:   make([]cacheItem, 0, len(set)),
	}
	for src, fp := range set {
		file.Entries = append(file.Entries, cacheItem{Source: src, Fingerprint: fp})
	}
	sort.Slice(file.Entries, func(i, j int) bool { return file.Entries[i].Source < file.Entries[j].Source })

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.InternalError("failed to encode fingerprint cache").WithCause(err).Build()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return errors.CacheError("failed to create cache directory").WithCause(err).
			WithContext("path", s.path).
			Build()
	}
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return errors.CacheError("failed to write fingerprint cache").WithCause(err).
			WithContext("path", tempPath).
			Build()
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return errors.CacheError("failed to replace fingerprint cache").WithCause(err).
			WithContext("path", s.path).
			Build()
	}

	s.logger.Debug("Fingerprint cache written", logfields.Path(s.path), slog.Int("entries", len(set)))
	return nil
}

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	set   Set
	saves int
}

// NewMemoryStore creates a MemoryStore seeded with initial (may be nil).
func NewMemoryStore(initial Set) *MemoryStore {
	return &MemoryStore{set: initial.Clone()}
}

// Load implements Store.
func (m *MemoryStore) Load() (Set, error) { return m.set.Clone(), nil }

// Save implements Store.
func (m *MemoryStore) Save(s Set) error {
	m.set = s.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int { return m.saves }

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
