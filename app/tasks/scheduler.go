package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/season-rank/app/refresh"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var (
	ErrQueueFull        = errors.New("task queue is full")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

const (
	QueueSize   = 100
	TaskTimeout = 3 * time.Hour
)

// Schedule is the daily refresh trigger in local time.
type Schedule struct {
	Hour    int
	Minute  int
	OnStart bool
}

type RunningTask struct {
	ID        string    `json:"id"`
	Type      TaskType  `json:"type"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
}

type RunSummary struct {
	TaskID     string    `json:"task_id"`
	Type       TaskType  `json:"type"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

type Status struct {
	NextRunAt   *time.Time   `json:"next_run_at"`
	LastRun     *RunSummary  `json:"last_run"`
	Running     *RunningTask `json:"running"`
	QueueLength int          `json:"queue_length"`
	Processed   int          `json:"processed"`
	Errors      int          `json:"errors"`
}

type outcomeReporter interface {
	Outcome() []refresh.Result
}

// Scheduler runs refresh tasks on a single worker, so runs within one
// process never overlap. The run lock covers other processes.
type Scheduler struct {
	refresher Refresher
	lock      Locker
	schedule  Schedule
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface

	mu        sync.Mutex
	nextRunAt *time.Time
	lastRun   *RunSummary
	running   *RunningTask
	processed int
	failures  int
}

func NewScheduler(refresher Refresher, lock Locker, schedule Schedule) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		refresher: refresher,
		lock:      lock,
		schedule:  schedule,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, QueueSize),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.schedule.OnStart {
			slog.Info("Enqueuing startup refresh")
			if _, err := s.RefreshAll(false); err != nil {
				slog.Warn("Failed to enqueue startup refresh", "error", err)
			}
		}

		for {
			next := NextRun(s.now(), s.schedule.Hour, s.schedule.Minute)
			s.setNextRun(next)
			slog.Info("Next scheduled refresh", "at", next.Format(time.RFC3339))

			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, err := s.RefreshAll(false); err != nil {
					slog.Warn("Failed to enqueue scheduled refresh", "error", err)
				}
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if s.ctx.Err() != nil {
		return ErrSchedulerStopped
	}

	select {
	case s.taskQueue <- task:
		slog.Debug("Task enqueued", "type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget().String())
		return nil
	default:
		return ErrQueueFull
	}
}

// RefreshAll queues a full refresh and returns the task id.
func (s *Scheduler) RefreshAll(force bool) (string, error) {
	task := NewRefreshAllTask(s.refresher, s.lock, force)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

// RefreshSeason queues a refresh of one season and returns the task id.
func (s *Scheduler) RefreshSeason(year, month int, force bool) (string, error) {
	task := NewRefreshSeasonTask(s.refresher, s.lock, year, month, force)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		QueueLength: len(s.taskQueue),
		Processed:   s.processed,
		Errors:      s.failures,
	}
	if s.nextRunAt != nil {
		next := *s.nextRunAt
		status.NextRunAt = &next
	}
	if s.lastRun != nil {
		last := *s.lastRun
		status.LastRun = &last
	}
	if s.running != nil {
		running := *s.running
		status.Running = &running
	}
	return status
}

// NextRun returns the first hour:minute strictly after now, in now's
// location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}

func (s *Scheduler) setNextRun(next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunAt = &next
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()
	started := s.now()

	s.mu.Lock()
	s.running = &RunningTask{ID: task.GetID(), Type: task.GetType(), Target: task.GetTarget().String(), StartedAt: started}
	s.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(s.ctx, TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	summary := &RunSummary{
		TaskID:     task.GetID(),
		Type:       task.GetType(),
		Target:     task.GetTarget().String(),
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if reporter, ok := task.(outcomeReporter); ok {
		summary.Updated, summary.Skipped, summary.Failed = refresh.Count(reporter.Outcome())
	}
	if err != nil {
		summary.Error = err.Error()
	}

	s.mu.Lock()
	s.running = nil
	s.lastRun = summary
	s.processed++
	if err != nil {
		s.failures++
	}
	s.mu.Unlock()

	if err == nil {
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget().String(), "retry_count", task.GetRetryCount(), "error", err)

	if !retryable(err) {
		slog.Warn("Task not retried", "type", string(task.GetType()), "id", task.GetID(), "error", err)
		return
	}

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := RetryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget().String(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// RetryDelay doubles from one second per retry, capped at 30 seconds.
func RetryDelay(retry int) time.Duration {
	delay := time.Duration(1<<uint(max(retry-1, 0))) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, refresh.ErrSeasonNotFound):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
