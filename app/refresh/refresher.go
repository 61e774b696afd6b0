package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/season-rank/app/bgm"
	"github.com/lysyi3m/season-rank/app/season"
)

const (
	DefaultSubjectDelay = 500 * time.Millisecond
	DefaultSeasonDelay  = 2 * time.Second
)

// Refresher runs refreshes one season and one subject at a time. Callers
// must not run two refreshes against the same store concurrently.
type Refresher struct {
	lister       Lister
	catalog      Catalog
	store        Store
	policy       season.Policy
	subjectDelay time.Duration
	seasonDelay  time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	overrides *season.Overrides
}

func NewRefresher(lister Lister, catalog Catalog, store Store, overrides *season.Overrides) *Refresher {
	return &Refresher{
		lister:       lister,
		catalog:      catalog,
		store:        store,
		overrides:    overrides,
		policy:       season.NewPolicy(),
		subjectDelay: DefaultSubjectDelay,
		seasonDelay:  DefaultSeasonDelay,
		now:          time.Now,
	}
}

func (r *Refresher) WithPolicy(policy season.Policy) *Refresher {
	r.policy = policy
	return r
}

func (r *Refresher) WithDelays(subjectDelay, seasonDelay time.Duration) *Refresher {
	r.subjectDelay = subjectDelay
	r.seasonDelay = seasonDelay
	return r
}

// ProcessSeason refreshes one season if the staleness policy allows it.
// Subjects whose detail cannot be fetched are left out of the document.
// The stored document is replaced only when the new one is written in full.
func (r *Refresher) ProcessSeason(ctx context.Context, idx season.Index, force bool) Result {
	started := r.now()
	result := Result{Season: idx}

	state := r.store.State(idx.Year, idx.Month)
	decision := r.policy.Decide(started, idx.Year, idx.Month, force, state)
	result.Summary.Reason = decision.Reason
	if state.Readable {
		result.Summary.PreviousUpdateTime = state.LastUpdate.Format(time.RFC3339Nano)
	}

	if !decision.ShouldUpdate() {
		result.Skipped = true
		result.Message = fmt.Sprintf("season %s is up to date (%s)", idx.Key(), decision.Reason)
		if doc, err := r.store.Load(idx.Year, idx.Month); err == nil && doc != nil {
			result.Summary.Title = doc.Title
			result.Summary.SubjectCount = len(doc.Subjects)
			result.Summary.LastUpdateTime = doc.LastUpdateTime
		}
		slog.Info("Season skipped", "season", idx.Key(), "index_id", idx.ID, "reason", decision.Reason)
		return result
	}

	slog.Info("Refreshing season", "season", idx.Key(), "index_id", idx.ID, "reason", decision.Reason)

	fail := func(format string, args ...any) Result {
		result.Message = fmt.Sprintf(format, args...)
		result.Summary.DurationMs = r.now().Sub(started).Milliseconds()
		slog.Error("Season refresh failed", "season", idx.Key(), "index_id", idx.ID, "message", result.Message)
		return result
	}

	detail, err := r.catalog.IndexDetail(ctx, idx.ID)
	if err != nil {
		return fail("failed to fetch index %s: %v", idx.ID, err)
	}
	if detail == nil {
		return fail("index %s returned no detail", idx.ID)
	}

	title := idx.Title
	if title == "" {
		title = detail.Title
	}
	result.Summary.Title = title

	stubs, err := r.catalog.IndexSubjects(ctx, idx.ID)
	if len(stubs) == 0 {
		if err != nil {
			return fail("failed to fetch subjects of index %s: %v", idx.ID, err)
		}
		return fail("index %s has no subjects", idx.ID)
	}
	if err != nil {
		slog.Warn("Subject list incomplete, continuing with partial list", "season", idx.Key(), "stubs", len(stubs), "error", err)
	}
	result.Summary.StubCount = len(stubs)

	subjects := make([]json.RawMessage, 0, len(stubs))
	for i, stub := range stubs {
		if i > 0 {
			if err := bgm.Sleep(ctx, r.subjectDelay); err != nil {
				return fail("refresh of season %s cancelled: %v", idx.Key(), err)
			}
		}

		if stub.ID <= 0 {
			result.Summary.Failed++
			slog.Warn("Subject stub has no id, skipping", "season", idx.Key(), "position", i)
			continue
		}

		subject, err := r.catalog.SubjectDetail(ctx, stub.ID)
		if err != nil {
			if ctx.Err() != nil {
				return fail("refresh of season %s cancelled: %v", idx.Key(), ctx.Err())
			}
			result.Summary.Failed++
			slog.Warn("Subject detail unavailable, omitting", "season", idx.Key(), "subject_id", stub.ID, "error", err)
			continue
		}
		subjects = append(subjects, subject)
	}

	doc := &season.Document{
		Title:    title,
		Subjects: subjects,
	}
	if err := r.store.Save(doc, idx.Year, idx.Month); err != nil {
		return fail("%v", err)
	}

	result.Success = true
	result.Summary.SubjectCount = len(subjects)
	result.Summary.LastUpdateTime = doc.LastUpdateTime
	result.Summary.DurationMs = r.now().Sub(started).Milliseconds()
	result.Message = fmt.Sprintf("season %s updated with %d subjects", idx.Key(), len(subjects))

	slog.Info("Season refreshed", "season", idx.Key(), "subjects", len(subjects), "failed", result.Summary.Failed, "duration_ms", result.Summary.DurationMs)
	return result
}

// listIndices returns the listing with overrides applied. A listing that
// broke midway still yields the indices read before the failure.
func (r *Refresher) listIndices(ctx context.Context) ([]season.Index, error) {
	indices, err := r.lister.ListSeasons(ctx)
	if err != nil {
		slog.Warn("Season listing incomplete", "seasons", len(indices), "error", err)
	}
	return r.currentOverrides().Apply(indices), err
}

// SetOverrides replaces the overrides used by subsequent listings.
func (r *Refresher) SetOverrides(overrides *season.Overrides) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = overrides
}

func (r *Refresher) currentOverrides() *season.Overrides {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overrides
}

// UpdateAll processes every listed season in listing order. A failing
// season does not stop the others.
func (r *Refresher) UpdateAll(ctx context.Context, force bool) []Result {
	started := r.now()

	indices, err := r.listIndices(ctx)
	if len(indices) == 0 {
		slog.Error("No seasons to refresh", "error", err)
		return nil
	}

	slog.Info("Refreshing all seasons", "seasons", len(indices), "force", force)

	results := make([]Result, 0, len(indices))
	for i, idx := range indices {
		if ctx.Err() != nil {
			slog.Warn("Refresh cancelled", "processed", i, "remaining", len(indices)-i)
			break
		}

		result := r.ProcessSeason(ctx, idx, force)
		results = append(results, result)

		if !result.Skipped && i < len(indices)-1 {
			if err := bgm.Sleep(ctx, r.seasonDelay); err != nil {
				slog.Warn("Refresh cancelled", "processed", i+1, "remaining", len(indices)-i-1)
				break
			}
		}
	}

	updated, skipped, failed := Count(results)
	slog.Info("Refresh completed", "updated", updated, "skipped", skipped, "failed", failed, "duration", r.now().Sub(started).String())

	return results
}

// RefreshMonth processes the listed season for year and month.
func (r *Refresher) RefreshMonth(ctx context.Context, year, month int, force bool) (Result, error) {
	indices, err := r.listIndices(ctx)
	for _, idx := range indices {
		if idx.Year == year && idx.Month == month {
			return r.ProcessSeason(ctx, idx, force), nil
		}
	}

	if err != nil {
		return Result{}, fmt.Errorf("failed to list seasons: %w", err)
	}
	return Result{}, fmt.Errorf("%w: %s", ErrSeasonNotFound, season.Key(year, month))
}

// Seasons lists every season known to the listing or the store, newest
// first. When the listing is unavailable only stored seasons are returned.
func (r *Refresher) Seasons(ctx context.Context) ([]SeasonStatus, error) {
	entries, err := r.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list stored seasons: %w", err)
	}

	indices, _ := r.listIndices(ctx)

	byKey := make(map[string]*SeasonStatus, len(indices)+len(entries))
	for _, idx := range indices {
		key := idx.Key()
		if _, ok := byKey[key]; ok {
			continue
		}
		byKey[key] = &SeasonStatus{
			Key:     key,
			Year:    idx.Year,
			Month:   idx.Month,
			IndexID: idx.ID,
			Title:   idx.Title,
			Listed:  true,
		}
	}

	for _, entry := range entries {
		key := entry.Key()
		status, ok := byKey[key]
		if !ok {
			status = &SeasonStatus{Key: key, Year: entry.Year, Month: entry.Month}
			byKey[key] = status
		}
		status.Cached = true
		status.Readable = entry.Readable
		status.LastUpdateTime = entry.LastUpdateTime
		status.SubjectCount = entry.SubjectCount
		status.Size = entry.Size
		if status.Title == "" {
			status.Title = entry.Title
		}
	}

	statuses := make([]SeasonStatus, 0, len(byKey))
	for _, status := range byKey {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Key > statuses[j].Key
	})

	return statuses, nil
}

// Count tallies results by outcome.
func Count(results []Result) (updated, skipped, failed int) {
	for _, result := range results {
		switch {
		case result.Success:
			updated++
		case result.Skipped:
			skipped++
		default:
			failed++
		}
	}
	return updated, skipped, failed
}
