// Package scheduler implements C11: a single cooperative tick loop that
// drives every named, interval-based task in schedule_settings. Grounded
// on luxzg-discover's internal/scheduler/scheduler.go (RunState,
// min-run-gap guard, Snapshot), generalized from one hardcoded daily task
// to a Store-driven set of named tasks, each with its own interval,
// timezone, per-task timeout, and a stuck-run force-clear the teacher's
// single-task scheduler had no need for.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/newsagg/internal/model"
)

// Store is the narrow persistence capability the scheduler needs.
type Store interface {
	ListScheduleSettings(ctx context.Context) ([]model.ScheduleSetting, error)
	ClaimSchedule(ctx context.Context, id int64) (bool, error)
	ReleaseSchedule(ctx context.Context, id int64, runErr error, nextRunAt time.Time) error
	ForceClearStuck(ctx context.Context, stuckAfter time.Duration) (int, error)
}

// TaskFunc is the work a named task performs when its turn comes.
type TaskFunc func(ctx context.Context) error

// Scheduler runs every enabled ScheduleSetting whose next_run_at has
// passed, one cooperative tick at a time.
type Scheduler struct {
	store         Store
	logger        *slog.Logger
	checkInterval time.Duration
	stuckAfter    time.Duration

	mu    sync.Mutex
	tasks map[string]TaskFunc

	snapMu sync.Mutex
	snap   map[string]RunState
}

// RunState mirrors the teacher's per-run observability snapshot, indexed
// per task name instead of a single global state.
type RunState struct {
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastError   string    `json:"last_error"`
	LastRunMS   int64     `json:"last_run_ms"`
}

// New builds a Scheduler. checkInterval<=0 defaults to 60s (spec's
// SCHEDULER_CHECK_INTERVAL_SECONDS default); stuckAfter<=0 defaults to 2h.
func New(store Store, logger *slog.Logger, checkInterval, stuckAfter time.Duration) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = 60 * time.Second
	}
	if stuckAfter <= 0 {
		stuckAfter = 2 * time.Hour
	}
	return &Scheduler{
		store:         store,
		logger:        logger,
		checkInterval: checkInterval,
		stuckAfter:    stuckAfter,
		tasks:         make(map[string]TaskFunc),
		snap:          make(map[string]RunState),
	}
}

// Register binds taskName (matching a schedule_settings.task_name row) to
// the function that runs it.
func (s *Scheduler) Register(taskName string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskName] = fn
}

// Run blocks, ticking every checkInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if n, err := s.store.ForceClearStuck(ctx, s.stuckAfter); err != nil {
		s.logWarn("force-clear stuck tasks failed", "error", err)
	} else if n > 0 {
		s.logWarn("force-cleared stuck scheduled tasks", "count", n)
	}

	settings, err := s.store.ListScheduleSettings(ctx)
	if err != nil {
		s.logWarn("listing schedule settings failed", "error", err)
		return
	}

	for _, st := range settings {
		if !st.Enabled {
			continue
		}
		if !st.NextRunAt.IsZero() && time.Now().Before(st.NextRunAt) {
			continue
		}
		s.mu.Lock()
		fn, ok := s.tasks[st.TaskName]
		s.mu.Unlock()
		if !ok {
			continue
		}
		go s.runOne(ctx, st, fn)
	}
}

func (s *Scheduler) runOne(ctx context.Context, st model.ScheduleSetting, fn TaskFunc) {
	claimed, err := s.store.ClaimSchedule(ctx, st.ID)
	if err != nil {
		s.logWarn("claiming schedule failed", "task", st.TaskName, "error", err)
		return
	}
	if !claimed {
		return
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if st.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(st.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	s.setSnap(st.TaskName, RunState{Running: true, StartedAt: time.Now()})
	start := time.Now()
	runErr := fn(runCtx)
	elapsed := time.Since(start)

	nextRun := s.computeNextRun(st)
	if releaseErr := s.store.ReleaseSchedule(ctx, st.ID, runErr, nextRun); releaseErr != nil {
		s.logWarn("releasing schedule failed", "task", st.TaskName, "error", releaseErr)
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		s.logWarn("scheduled task finished with error", "task", st.TaskName, "elapsed", elapsed, "error", runErr)
	}
	s.setSnap(st.TaskName, RunState{Running: false, LastRunAt: time.Now(), LastError: errMsg, LastRunMS: elapsed.Milliseconds()})
}

// computeNextRun schedules the next run IntervalSeconds from now, in the
// task's configured timezone (falling back to UTC on an unknown name).
func (s *Scheduler) computeNextRun(st model.ScheduleSetting) time.Time {
	loc, err := time.LoadLocation(st.Timezone)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Add(time.Duration(st.IntervalSeconds) * time.Second)
}

func (s *Scheduler) setSnap(task string, state RunState) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snap[task] = state
}

// Snapshot returns the last-known RunState for every task this process
// has executed at least once.
func (s *Scheduler) Snapshot() map[string]RunState {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	out := make(map[string]RunState, len(s.snap))
	for k, v := range s.snap {
		out[k] = v
	}
	return out
}

func (s *Scheduler) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
