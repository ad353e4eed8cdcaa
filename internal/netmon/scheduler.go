package netmon

import (
	"log"
	"os"
	"sync"
	"time"
)

// Scheduler runs named periodic tasks with an explicit visible/hidden policy.
//
// Tasks are keyed by name so the same logical task cannot be double-scheduled.
// Tasks that do not opt into RunWhileHidden are skipped while the host is in
// the background; refresh periods are coarse (seconds) since this drives a
// human-paced workflow. Every scheduled task must be stopped on teardown.
type Scheduler struct {
	logger *log.Logger

	mu      sync.Mutex
	visible bool
	tasks   map[string]*task
}

type task struct {
	name           string
	period         time.Duration
	runWhileHidden bool
	fn             func()
	stop           chan struct{}
}

// TaskOptions configures a scheduled task.
type TaskOptions struct {
	// Period between runs.
	Period time.Duration

	// RunWhileHidden keeps the task firing while the host is backgrounded.
	// Default is to pause, conserving battery and CPU.
	RunWhileHidden bool
}

// NewScheduler creates a scheduler. The host starts visible.
// If logger is nil, a default logger writing to stderr is used.
func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sched] ", log.LstdFlags)
	}
	return &Scheduler{
		logger:  logger,
		visible: true,
		tasks:   make(map[string]*task),
	}
}

// SetVisible flips the foreground/background state. Hidden pauses every task
// that did not opt into RunWhileHidden.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

// Visible reports the current foreground/background state.
func (s *Scheduler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Schedule registers and starts a named periodic task.
//
// Returns false if a task with the same name is already scheduled; the
// existing task keeps running untouched.
func (s *Scheduler) Schedule(name string, opts TaskOptions, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return false
	}

	t := &task{
		name:           name,
		period:         opts.Period,
		runWhileHidden: opts.RunWhileHidden,
		fn:             fn,
		stop:           make(chan struct{}),
	}
	s.tasks[name] = t

	go s.run(t)
	return true
}

// Stop cancels a named task. Idempotent; unknown names are ignored.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	if ok {
		close(t.stop)
	}
}

// StopAll cancels every task. Called on teardown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		close(t.stop)
	}
}

// Running reports whether a task with the given name is scheduled.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

func (s *Scheduler) run(t *task) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.runWhileHidden && !s.Visible() {
				continue
			}
			s.safeRun(t)
		}
	}
}

func (s *Scheduler) safeRun(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Task %s panicked: %v", t.name, r)
		}
	}()
	t.fn()
}
