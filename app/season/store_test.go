package season

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func compactJSON(t *testing.T, raw []byte) string {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		t.Fatalf("Invalid JSON %q: %v", raw, err)
	}
	return buf.String()
}

func TestStorePath(t *testing.T) {
	store := NewStore("/data/static")

	if got := store.Path(2024, 1); got != filepath.Join("/data/static", "202401.json") {
		t.Errorf("Expected zero-padded path, got '%s'", got)
	}
	if got := store.Path(2023, 10); got != filepath.Join("/data/static", "202310.json") {
		t.Errorf("Expected two-digit month path, got '%s'", got)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "static"))

	doc := &Document{
		Title: "2024年1月番（共42部）",
		Subjects: []json.RawMessage{
			json.RawMessage(`{"id":1,"name":"<Frieren>","rating":{"score":9.1}}`),
			json.RawMessage(`{"id":2,"name_cn":"药屋少女的呢喃"}`),
		},
	}

	start := time.Now()
	if err := store.Save(doc, 2024, 1); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(2024, 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected document, got nil")
	}

	if loaded.Title != doc.Title {
		t.Errorf("Expected title '%s', got '%s'", doc.Title, loaded.Title)
	}
	if len(loaded.Subjects) != len(doc.Subjects) {
		t.Fatalf("Expected %d subjects, got %d", len(doc.Subjects), len(loaded.Subjects))
	}
	for i := range doc.Subjects {
		if compactJSON(t, loaded.Subjects[i]) != compactJSON(t, doc.Subjects[i]) {
			t.Errorf("Subject %d changed: %s", i, loaded.Subjects[i])
		}
	}

	updatedAt, err := loaded.UpdatedAt()
	if err != nil {
		t.Fatalf("Expected parseable timestamp, got %v", err)
	}
	if updatedAt.Before(start.Truncate(time.Second)) {
		t.Errorf("Expected update time no earlier than %v, got %v", start, updatedAt)
	}
	if loaded.LastUpdateTime != doc.LastUpdateTime {
		t.Errorf("Expected in-memory stamp '%s' to match persisted '%s'", doc.LastUpdateTime, loaded.LastUpdateTime)
	}

	raw, err := os.ReadFile(store.Path(2024, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte("<Frieren>")) {
		t.Error("Expected HTML characters to be written unescaped")
	}
	if !bytes.Contains(raw, []byte("药屋少女的呢喃")) {
		t.Error("Expected UTF-8 text to be written as-is")
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	doc, err := store.Load(2020, 4)
	if err != nil {
		t.Fatalf("Expected no error for missing document, got %v", err)
	}
	if doc != nil {
		t.Errorf("Expected nil document, got %+v", doc)
	}

	state := store.State(2020, 4)
	if state.Exists {
		t.Error("Expected missing document to report Exists=false")
	}
}

func TestStoreStateUnreadable(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := os.WriteFile(store.Path(2019, 7), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	state := store.State(2019, 7)
	if !state.Exists || state.Readable {
		t.Errorf("Expected exists but unreadable for malformed file, got %+v", state)
	}

	if err := os.WriteFile(store.Path(2019, 10), []byte(`{"title":"x","subjects":[],"last_update_time":"yesterday"}`), 0644); err != nil {
		t.Fatal(err)
	}
	state = store.State(2019, 10)
	if !state.Exists || state.Readable {
		t.Errorf("Expected exists but unreadable for bad timestamp, got %+v", state)
	}
}

func TestStoreStateAcceptsNaiveTimestamp(t *testing.T) {
	store := NewStore(t.TempDir())

	content := `{"title":"2018年4月番","subjects":[],"last_update_time":"2024-05-01T10:20:30.123456"}`
	if err := os.WriteFile(store.Path(2018, 4), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	state := store.State(2018, 4)
	if !state.Exists || !state.Readable {
		t.Fatalf("Expected readable state, got %+v", state)
	}
	expected := time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.Local)
	if !state.LastUpdate.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, state.LastUpdate)
	}
}

func TestStoreSaveFailureKeepsPreviousDocument(t *testing.T) {
	store := NewStore(t.TempDir())

	original := &Document{Title: "original", Subjects: []json.RawMessage{json.RawMessage(`{"id":1}`)}}
	if err := store.Save(original, 2015, 1); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.Path(2015, 1))
	if err != nil {
		t.Fatal(err)
	}

	broken := &Document{Title: "broken", Subjects: []json.RawMessage{json.RawMessage(`{"id":`)}, LastUpdateTime: "earlier"}
	err = store.Save(broken, 2015, 1)
	if err == nil {
		t.Fatal("Expected error saving malformed subject")
	}
	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Errorf("Expected *PersistError, got %T", err)
	}
	if broken.LastUpdateTime != "earlier" {
		t.Errorf("Expected stamp to be rolled back, got '%s'", broken.LastUpdateTime)
	}

	after, err := os.ReadFile(store.Path(2015, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("Expected previous document to be left untouched")
	}

	leftovers, _ := filepath.Glob(filepath.Join(store.Dir(), ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("Expected no temp files left behind, got %v", leftovers)
	}
}

func TestStoreSaveReplaceFailure(t *testing.T) {
	store := NewStore(t.TempDir())

	// A directory in place of the target makes the final rename fail.
	if err := os.MkdirAll(filepath.Join(store.Path(2016, 4), "child"), 0755); err != nil {
		t.Fatal(err)
	}

	doc := &Document{Title: "x"}
	err := store.Save(doc, 2016, 4)
	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("Expected *PersistError, got %v", err)
	}
	if persistErr.Path != store.Path(2016, 4) {
		t.Errorf("Expected error path '%s', got '%s'", store.Path(2016, 4), persistErr.Path)
	}
	if doc.LastUpdateTime != "" {
		t.Errorf("Expected no update time after failed write, got '%s'", doc.LastUpdateTime)
	}
}

func TestStoreSaveOverwritesWholesale(t *testing.T) {
	store := NewStore(t.TempDir())
	ticks := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	store.now = func() time.Time {
		tick := ticks[0]
		ticks = ticks[1:]
		return tick
	}

	first := &Document{Title: "first", Subjects: []json.RawMessage{json.RawMessage(`{"id":1}`), json.RawMessage(`{"id":2}`)}}
	if err := store.Save(first, 2026, 1); err != nil {
		t.Fatal(err)
	}
	second := &Document{Title: "second", Subjects: []json.RawMessage{json.RawMessage(`{"id":3}`)}}
	if err := store.Save(second, 2026, 1); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(2026, 1)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != "second" || len(loaded.Subjects) != 1 {
		t.Errorf("Expected full replacement, got title '%s' with %d subjects", loaded.Title, len(loaded.Subjects))
	}
	if loaded.LastUpdateTime != "2026-01-02T00:00:00Z" {
		t.Errorf("Expected second stamp, got '%s'", loaded.LastUpdateTime)
	}
}

func TestStoreList(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, key := range []struct{ year, month int }{{2023, 10}, {2024, 1}, {2022, 4}} {
		doc := &Document{Title: Key(key.year, key.month), Subjects: []json.RawMessage{json.RawMessage(`{"id":1}`)}}
		if err := store.Save(doc, key.year, key.month); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "notes.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.Path(2021, 7), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}

	expectedKeys := []string{"202401", "202310", "202204", "202107"}
	if len(entries) != len(expectedKeys) {
		t.Fatalf("Expected %d entries, got %d", len(expectedKeys), len(entries))
	}
	for i, key := range expectedKeys {
		if entries[i].Key() != key {
			t.Errorf("Entry %d: expected key %s, got %s", i, key, entries[i].Key())
		}
	}
	if !entries[0].Readable || entries[0].SubjectCount != 1 {
		t.Errorf("Expected readable entry with 1 subject, got %+v", entries[0])
	}
	if entries[3].Readable {
		t.Error("Expected garbage file to be listed as unreadable")
	}
}

func TestParseKey(t *testing.T) {
	year, month, err := ParseKey("202407")
	if err != nil || year != 2024 || month != 7 {
		t.Errorf("Expected 2024/7, got %d/%d (%v)", year, month, err)
	}

	for _, key := range []string{"2024", "202413", "2024ab", "20240101"} {
		if _, _, err := ParseKey(key); err == nil {
			t.Errorf("Expected error for key %q", key)
		}
	}
}
