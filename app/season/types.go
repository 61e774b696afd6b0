package season

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Index identifies one seasonal index on the listing page.
type Index struct {
	ID    string `json:"id" yaml:"id"`
	Year  int    `json:"year" yaml:"year"`
	Month int    `json:"month" yaml:"month"`
	Title string `json:"title" yaml:"title"`
}

// Key returns the zero-padded YYYYMM key used for file names and API ids.
func (i Index) Key() string {
	return Key(i.Year, i.Month)
}

func Key(year, month int) string {
	return fmt.Sprintf("%04d%02d", year, month)
}

// ParseKey splits a YYYYMM key into year and month.
func ParseKey(key string) (int, int, error) {
	if len(key) != 6 {
		return 0, 0, fmt.Errorf("season key must be 6 digits: %q", key)
	}
	year, err := strconv.Atoi(key[:4])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year in season key %q: %w", key, err)
	}
	month, err := strconv.Atoi(key[4:])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month in season key %q: %w", key, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month out of range in season key %q", key)
	}
	return year, month, nil
}

// Document is the persisted form of one season. Subjects are passed
// through from the catalog untouched.
type Document struct {
	Title          string            `json:"title"`
	Subjects       []json.RawMessage `json:"subjects"`
	LastUpdateTime string            `json:"last_update_time"`
}

// Files written by older tooling carry a naive local timestamp.
const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

// UpdatedAt parses LastUpdateTime.
func (d *Document) UpdatedAt() (time.Time, error) {
	return ParseTimestamp(d.LastUpdateTime)
}

func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveTimestampLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t, nil
}

// State is what the staleness policy knows about a persisted season.
type State struct {
	Exists     bool
	Readable   bool
	LastUpdate time.Time
}

// Entry describes one season file found on disk.
type Entry struct {
	Year           int
	Month          int
	Path           string
	Size           int64
	ModTime        time.Time
	Title          string
	LastUpdateTime string
	SubjectCount   int
	Readable       bool
}

func (e Entry) Key() string {
	return Key(e.Year, e.Month)
}
