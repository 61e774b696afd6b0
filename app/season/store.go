package season

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PersistError reports a failed season write. The previous document, if
// any, is left untouched.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Store keeps one JSON document per season under dir, named YYYYMM.json.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		now: time.Now,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(year, month int) string {
	return filepath.Join(s.dir, Key(year, month)+".json")
}

// Load returns nil, nil when no document exists for the season.
func (s *Store) Load(year, month int) (*Document, error) {
	path := s.Path(year, month)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &doc, nil
}

// State reports existence and last update time for the staleness policy.
// Unreadable documents are logged, not returned as errors.
func (s *Store) State(year, month int) State {
	path := s.Path(year, month)
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to stat season document", "path", path, "error", err)
			return State{Exists: true}
		}
		return State{}
	}

	doc, err := s.Load(year, month)
	if err != nil {
		slog.Warn("Season document unreadable", "path", path, "error", err)
		return State{Exists: true}
	}
	if doc == nil {
		return State{}
	}

	updatedAt, err := doc.UpdatedAt()
	if err != nil {
		slog.Warn("Season document has no usable update time", "path", path, "error", err)
		return State{Exists: true}
	}

	return State{Exists: true, Readable: true, LastUpdate: updatedAt}
}

// Save stamps doc.LastUpdateTime and replaces the season file as a whole.
// The data goes to a temp file that is renamed over the target, so readers
// see either the old document or the new one.
func (s *Store) Save(doc *Document, year, month int) error {
	path := s.Path(year, month)

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &PersistError{Path: path, Err: err}
	}

	previous := doc.LastUpdateTime
	doc.LastUpdateTime = s.now().Format(time.RFC3339Nano)
	if doc.Subjects == nil {
		doc.Subjects = []json.RawMessage{}
	}

	if err := s.writeAtomic(path, doc); err != nil {
		doc.LastUpdateTime = previous
		return &PersistError{Path: path, Err: err}
	}

	slog.Debug("Season document saved", "path", path, "subjects", len(doc.Subjects))
	return nil
}

func (s *Store) writeAtomic(path string, doc *Document) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}

	return nil
}

// List returns every season file in the store, newest season first.
func (s *Store) List() ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to find season files: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		key := strings.TrimSuffix(filepath.Base(file), ".json")
		year, month, err := ParseKey(key)
		if err != nil {
			continue
		}

		info, err := os.Stat(file)
		if err != nil {
			slog.Warn("Failed to stat season file", "path", file, "error", err)
			continue
		}

		entry := Entry{
			Year:    year,
			Month:   month,
			Path:    file,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		if doc, err := s.Load(year, month); err != nil {
			slog.Warn("Season document unreadable", "path", file, "error", err)
		} else if doc != nil {
			entry.Title = doc.Title
			entry.LastUpdateTime = doc.LastUpdateTime
			entry.SubjectCount = len(doc.Subjects)
			entry.Readable = true
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key() > entries[j].Key()
	})

	return entries, nil
}
