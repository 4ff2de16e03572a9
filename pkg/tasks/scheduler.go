// Package tasks runs named callbacks at fixed intervals.
package tasks

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler owns a set of named periodic tasks. Adding a task under an existing
// name replaces it.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*task
	log   *zap.SugaredLogger
}

type task struct {
	sync.WaitGroup

	name     string
	interval time.Duration
	fn       func()
	haltCh   chan struct{}
}

// NewScheduler creates an empty scheduler
func NewScheduler(log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{
		tasks: make(map[string]*task),
		log:   log,
	}
}

// AddTask starts fn every interval under name
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func()) {
	t := &task{
		name:     name,
		interval: interval,
		fn:       fn,
		haltCh:   make(chan struct{}),
	}

	s.mu.Lock()
	old := s.tasks[name]
	s.tasks[name] = t
	s.mu.Unlock()

	if old != nil {
		old.halt()
	}

	t.Add(1)
	go t.worker(s.log)
	s.log.Debugf("task %s scheduled every %v", name, interval)
}

// DeleteTask stops and removes the named task. It waits for a running
// invocation to return, so it must not be called from inside that task.
func (s *Scheduler) DeleteTask(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.halt()
	s.log.Debugf("task %s removed", name)
	return true
}

// CancelTask removes the named task without waiting for a running invocation
// to return. It may be called from inside the task; the task does not run again.
func (s *Scheduler) CancelTask(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()

	if !ok {
		return false
	}
	close(t.haltCh)
	s.log.Debugf("task %s cancelled", name)
	return true
}

// HasTask reports whether name is scheduled
func (s *Scheduler) HasTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Stop halts every task
func (s *Scheduler) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.halt()
	}
}

func (t *task) halt() {
	close(t.haltCh)
	t.Wait()
}

func (t *task) worker(log *zap.SugaredLogger) {
	ticker := time.NewTicker(t.interval)
	defer func() {
		ticker.Stop()
		t.Done()
	}()

	for {
		select {
		case <-t.haltCh:
			return
		case <-ticker.C:
		}

		select {
		case <-t.haltCh:
			return
		default:
		}
		t.run(log)
	}
}

// run invokes the callback; a panic is logged and the task keeps ticking
func (t *task) run(log *zap.SugaredLogger) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	t.fn()
}
