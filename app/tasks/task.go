package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/season-rank/app/season"
)

type TaskType string

const (
	TaskTypeRefreshAll    TaskType = "refresh_all"
	TaskTypeRefreshSeason TaskType = "refresh_season"
)

// DefaultMaxRetries covers a run lock held by a CLI refresh for a while.
const DefaultMaxRetries = 3

// Target is the set of seasons a task refreshes. The zero value stands for
// every listed season.
type Target struct {
	Year  int
	Month int
}

func AllSeasons() Target {
	return Target{}
}

func SeasonTarget(year, month int) Target {
	return Target{Year: year, Month: month}
}

func (t Target) All() bool {
	return t.Year == 0
}

// String returns "all" or the season's YYYYMM key.
func (t Target) String() string {
	if t.All() {
		return "all"
	}
	return season.Key(t.Year, t.Month)
}

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetTarget() Target
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by refresh tasks. Retries re-enqueue
// the same value, so ID and Target stay stable across attempts.
type Task struct {
	ID         string
	Type       TaskType
	Target     Target
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
}

func NewTask(taskType TaskType, target Target) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Target:     target,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) GetID() string { return t.ID }
func (t *Task) GetType() TaskType { return t.Type }
func (t *Task) GetTarget() Target { return t.Target }
func (t *Task) GetRetryCount() int { return t.RetryCount }
func (t *Task) GetMaxRetries() int { return t.MaxRetries }
func (t *Task) IncrementRetryCount() { t.RetryCount++ }
func (t *Task) CanRetry() bool { return t.RetryCount < t.MaxRetries }

// Start marks the beginning of the current attempt.
func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

// GetDuration is the time spent in the current attempt so far.
func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
