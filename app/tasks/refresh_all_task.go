package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/season-rank/app/refresh"
)

var errNothingRefreshed = errors.New("no seasons were processed")

type RefreshAllTask struct {
	Task
	Force     bool
	Results   []refresh.Result
	refresher Refresher
	lock      Locker
}

func NewRefreshAllTask(refresher Refresher, lock Locker, force bool) *RefreshAllTask {
	return &RefreshAllTask{
		Task:      NewTask(TaskTypeRefreshAll, AllSeasons()),
		Force:     force,
		refresher: refresher,
		lock:      lock,
	}
}

// Execute fails only when the run could not start or the listing yielded
// nothing. Failed seasons are reported in Results.
func (t *RefreshAllTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return t.lock.Run(func() error {
		t.Results = t.refresher.UpdateAll(ctx, t.Force)
		if len(t.Results) == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errNothingRefreshed
		}

		updated, skipped, failed := refresh.Count(t.Results)
		slog.Info("Task completed", "type", string(t.Type), "id", t.ID, "updated", updated, "skipped", skipped, "failed", failed, "duration", t.GetDuration().String())
		return nil
	})
}

func (t *RefreshAllTask) Outcome() []refresh.Result {
	return t.Results
}
