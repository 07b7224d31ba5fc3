// Package scheduler runs named recurring tasks without overlap.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFunc is the body of a scheduled task.
type TaskFunc func(ctx context.Context) error

// TaskStatus is a snapshot of one task for monitoring.
type TaskStatus struct {
	Name           string     `json:"name"`
	Interval       string     `json:"interval"`
	Active         bool       `json:"active"`
	Running        bool       `json:"running"`
	Runs           int        `json:"runs"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
}

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc

	active  bool
	running bool
	timer   *time.Timer
	// gen changes on every Start so timers armed by an earlier activation
	// cannot fire into a later one.
	gen uint64

	runs         int
	lastStarted  time.Time
	lastFinished time.Time
	lastErr      string
	nextRun      time.Time
}

// JobScheduler invokes registered tasks immediately on Start and then every
// interval after the previous run completes. A task never overlaps itself.
type JobScheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *JobScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("scheduler"),
	}
}

// Register adds an inactive task.
func (s *JobScheduler) Register(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	s.tasks[name] = &task{name: name, interval: interval, fn: fn}
	return nil
}

// Start activates the task and runs it right away. It returns false, doing
// nothing, when the task is unknown, already active, or still finishing a
// run from before the last Stop.
func (s *JobScheduler) Start(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok || s.closed || t.active || t.running {
		return false
	}
	t.active = true
	t.gen++
	s.launchLocked(t)

	s.logger.Info("Task started", zap.String("task", name), zap.Duration("interval", t.interval))
	return true
}

// Stop deactivates the task and cancels its pending timer. A run in
// progress completes but is not re-armed. Returns false if the task was not
// active.
func (s *JobScheduler) Stop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok || !t.active {
		return false
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.nextRun = time.Time{}

	s.logger.Info("Task stopped", zap.String("task", name), zap.Bool("running", t.running))
	return true
}

// Task returns the status of a single task.
func (s *JobScheduler) Task(name string) (TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return TaskStatus{}, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return t.status(), nil
}

// Status returns every task ordered by name.
func (s *JobScheduler) Status() []TaskStatus {
	s.mu.Lock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.status())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b TaskStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Shutdown stops every task, cancels the context handed to running task
// bodies and waits for them to return or for ctx to expire.
func (s *JobScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, t := range s.tasks {
		t.active = false
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *JobScheduler) launchLocked(t *task) {
	t.running = true
	t.lastStarted = time.Now()
	t.nextRun = time.Time{}
	s.wg.Add(1)
	go s.run(t, t.gen)
}

func (s *JobScheduler) run(t *task, gen uint64) {
	defer s.wg.Done()

	start := time.Now()
	err := s.invoke(t)

	s.mu.Lock()
	defer s.mu.Unlock()

	t.running = false
	t.runs++
	t.lastFinished = time.Now()
	t.lastErr = ""
	if err != nil {
		t.lastErr = err.Error()
		s.logger.Error("Task failed",
			zap.String("task", t.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	} else {
		s.logger.Debug("Task completed",
			zap.String("task", t.name),
			zap.Duration("duration", time.Since(start)))
	}

	if !t.active || t.gen != gen || s.closed {
		return
	}
	t.nextRun = time.Now().Add(t.interval)
	t.timer = time.AfterFunc(t.interval, func() { s.fire(t, gen) })
}

func (s *JobScheduler) fire(t *task, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.active || t.running || t.gen != gen || s.closed {
		return
	}
	t.timer = nil
	s.launchLocked(t)
}

func (s *JobScheduler) invoke(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked",
				zap.String("task", t.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return t.fn(s.ctx)
}

func (t *task) status() TaskStatus {
	st := TaskStatus{
		Name:      t.name,
		Interval:  t.interval.String(),
		Active:    t.active,
		Running:   t.running,
		Runs:      t.runs,
		LastError: t.lastErr,
	}
	if !t.lastStarted.IsZero() {
		ts := t.lastStarted
		st.LastStartedAt = &ts
	}
	if !t.lastFinished.IsZero() {
		ts := t.lastFinished
		st.LastFinishedAt = &ts
	}
	if !t.nextRun.IsZero() {
		ts := t.nextRun
		st.NextRunAt = &ts
	}
	return st
}
