package monitoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/faqminer/backend/internal/metrics"
	"github.com/faqminer/backend/pkg/apperr"
	"github.com/faqminer/backend/pkg/logger"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	running  atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
	runs    int
	skips   int
}

type TaskStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"lastRun"`
	LastError string        `json:"lastError,omitempty"`
	Runs      int           `json:"runs"`
	Skips     int           `json:"skips"`
}

// Scheduler runs registered tasks on fixed intervals. A task that is still
// running when its next tick arrives is skipped for that tick.
type Scheduler struct {
	clock Clock
	mu    sync.Mutex
	tasks map[string]*task

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{clock: clock, tasks: make(map[string]*task)}
}

func (s *Scheduler) Register(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("%w: task %s needs a positive interval", apperr.ErrInvalidInput, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: task %s already registered", apperr.ErrInvalidInput, name)
	}
	s.tasks[name] = &task{name: name, interval: interval, fn: fn}
	return nil
}

// Start launches one ticker loop per task. Stop or cancelling ctx ends them.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		ticker := s.clock.NewTicker(t.interval)
		s.wg.Add(1)
		go func(t *task) {
			defer s.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C():
					s.wg.Add(1)
					go func() {
						defer s.wg.Done()
						s.execute(ctx, t)
					}()
				}
			}
		}(t)
		logger.Info("Scheduled task started", zap.String("task", t.name), zap.Duration("interval", t.interval))
	}
}

// Stop cancels the loops and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunNow runs a task synchronously through the same overlap guard as ticks.
// ran is false when the task was already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) (ran bool, err error) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("task %s: %w", name, apperr.ErrNotFound)
	}
	return s.execute(ctx, t)
}

func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		out = append(out, TaskStatus{
			Name:      t.name,
			Interval:  t.interval,
			Running:   t.running.Load(),
			LastRun:   t.lastRun,
			LastError: t.lastErr,
			Runs:      t.runs,
			Skips:     t.skips,
		})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// execute runs t once unless it is already running. Errors and panics stop at
// this boundary so the scheduler keeps going.
func (s *Scheduler) execute(ctx context.Context, t *task) (ran bool, err error) {
	if !t.running.CompareAndSwap(false, true) {
		t.mu.Lock()
		t.skips++
		t.mu.Unlock()
		metrics.TaskRuns.WithLabelValues(t.name, "skipped").Inc()
		logger.Warn("Task still running, skipping", zap.String("task", t.name))
		return false, nil
	}
	defer t.running.Store(false)

	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}

		outcome := "ok"
		if err != nil {
			outcome = "error"
			logger.Error("Scheduled task failed", zap.String("task", t.name), zap.Error(err))
		}
		metrics.TaskRuns.WithLabelValues(t.name, outcome).Inc()
		metrics.TaskDuration.WithLabelValues(t.name).Observe(s.clock.Now().Sub(start).Seconds())

		t.mu.Lock()
		t.lastRun = start
		t.runs++
		t.lastErr = ""
		if err != nil {
			t.lastErr = err.Error()
		}
		t.mu.Unlock()
	}()

	ran = true
	err = t.fn(ctx)
	return ran, err
}
