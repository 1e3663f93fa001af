// Package scheduler runs named periodic maintenance tasks.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is one run of a periodic task. ctx ends on Stop, or when the
// task's timeout elapses.
type TaskFn func(ctx context.Context) error

// TaskInfo describes a registered task and its run history.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

type task struct {
	fn      TaskFn
	timeout time.Duration
	stopCh  chan struct{}

	mu   sync.Mutex
	info TaskInfo
}

func (t *task) snapshot() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Scheduler owns a set of ticker tasks keyed by name.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("scheduler"),
	}
}

// AddTicker runs fn every interval until Stop, replacing any task of the
// same name.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.AddTickerWithTimeout(name, interval, 0, fn)
}

// AddTickerWithTimeout is AddTicker with each run bounded by timeout.
// timeout <= 0 means unbounded.
func (s *Scheduler) AddTickerWithTimeout(name string, interval, timeout time.Duration, fn TaskFn) {
	t := &task{
		fn:      fn,
		timeout: timeout,
		stopCh:  make(chan struct{}),
		info:    TaskInfo{Name: name, Interval: interval},
	}

	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		close(old.stopCh)
	}
	s.tasks[name] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(t, interval)
	s.logger.Info("task registered", zap.String("task", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(t *task, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(t)
		case <-t.stopCh:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(t *task) {
	ctx := s.ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := call(ctx, t.fn)

	t.mu.Lock()
	t.info.Runs++
	t.info.LastRun = &start
	t.info.LastError = ""
	if err != nil {
		t.info.Failures++
		t.info.LastError = err.Error()
	}
	name := t.info.Name
	t.mu.Unlock()

	if err != nil {
		s.logger.Warn("task failed", zap.String("task", name), zap.Error(err))
		return
	}
	s.logger.Debug("task done", zap.String("task", name), zap.Duration("took", time.Since(start)))
}

// call runs fn, turning a panic into an error.
func call(ctx context.Context, fn TaskFn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Remove stops the named task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		close(t.stopCh)
		delete(s.tasks, name)
	}
}

// Stop cancels running tasks and waits for every task goroutine to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// ListTickers returns the registered task names, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns every task's info, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
