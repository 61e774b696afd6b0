package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/season-rank/app/refresh"
)

type RefreshSeasonTask struct {
	Task
	Force     bool
	Result    *refresh.Result
	refresher Refresher
	lock      Locker
}

func NewRefreshSeasonTask(refresher Refresher, lock Locker, year, month int, force bool) *RefreshSeasonTask {
	return &RefreshSeasonTask{
		Task:      NewTask(TaskTypeRefreshSeason, SeasonTarget(year, month)),
		Force:     force,
		refresher: refresher,
		lock:      lock,
	}
}

func (t *RefreshSeasonTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return t.lock.Run(func() error {
		result, err := t.refresher.RefreshMonth(ctx, t.Target.Year, t.Target.Month, t.Force)
		if err != nil {
			return err
		}
		t.Result = &result

		if result.Failed() {
			return fmt.Errorf("season %s: %s", t.Target, result.Message)
		}

		slog.Info("Task completed", "type", string(t.Type), "id", t.ID, "season", t.Target.String(), "skipped", result.Skipped, "subjects", result.Summary.SubjectCount, "duration", t.GetDuration().String())
		return nil
	})
}

func (t *RefreshSeasonTask) Outcome() []refresh.Result {
	if t.Result == nil {
		return nil
	}
	return []refresh.Result{*t.Result}
}
