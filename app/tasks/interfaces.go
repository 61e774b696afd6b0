package tasks

import (
	"context"

	"github.com/lysyi3m/season-rank/app/refresh"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to queue refresh runs.
// Example usage:
//
//	scheduler := NewScheduler(refresher, refresh.NewRunLock(dataDir), Schedule{Hour: 4})
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshAllTask(refresher, lock, false))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	RefreshAll(force bool) (string, error)
	RefreshSeason(year, month int, force bool) (string, error)
	Status() Status
}

// Refresher is the part of refresh.Refresher the tasks drive.
type Refresher interface {
	UpdateAll(ctx context.Context, force bool) []refresh.Result
	RefreshMonth(ctx context.Context, year, month int, force bool) (refresh.Result, error)
}

// Locker serializes runs across processes.
type Locker interface {
	Run(fn func() error) error
}

var (
	_ Refresher = (*refresh.Refresher)(nil)
	_ Locker    = (*refresh.RunLock)(nil)
)
