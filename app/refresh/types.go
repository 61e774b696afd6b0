package refresh

import (
	"errors"

	"github.com/lysyi3m/season-rank/app/season"
)

var ErrSeasonNotFound = errors.New("season not found in listing")

// Result reports the outcome of processing one season. A skipped season
// has Success false and Skipped true; it is informational, not a failure.
type Result struct {
	Season  season.Index `json:"season"`
	Success bool         `json:"success"`
	Skipped bool         `json:"skipped"`
	Message string       `json:"message"`
	Summary Summary      `json:"summary"`
}

// Failed reports whether the season was attempted and did not complete.
func (r Result) Failed() bool {
	return !r.Success && !r.Skipped
}

type Summary struct {
	Title              string        `json:"title,omitempty"`
	Reason             season.Reason `json:"reason"`
	StubCount          int           `json:"stub_count"`
	SubjectCount       int           `json:"subject_count"`
	Failed             int           `json:"failed"`
	LastUpdateTime     string        `json:"last_update_time,omitempty"`
	PreviousUpdateTime string        `json:"previous_update_time,omitempty"`
	DurationMs         int64         `json:"duration_ms"`
}

// SeasonStatus merges what the listing and the store know about a season.
type SeasonStatus struct {
	Key            string `json:"season_id"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	IndexID        string `json:"index_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Listed         bool   `json:"listed"`
	Cached         bool   `json:"cached"`
	Readable       bool   `json:"readable"`
	LastUpdateTime string `json:"last_update_time,omitempty"`
	SubjectCount   int    `json:"subject_count"`
	Size           int64  `json:"size"`
}
