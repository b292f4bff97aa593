package poller

import (
	"context"
	"sync"
	"time"

	"github.com/moyoez/partyline-console/tool"
)

// DefaultResolution is how often the scheduler checks for due tasks.
const DefaultResolution = 50 * time.Millisecond

// Task is one independently timed fetch. A zero Period makes the task run
// only when refreshed.
type Task struct {
	Name    string
	Period  time.Duration
	Fetch   func(ctx context.Context) (any, error)
	Apply   func(v any)
	OnError func(err error)
	Enabled func() bool // nil means always enabled
}

// NewTask builds a Task from typed callbacks.
func NewTask[T any](name string, period time.Duration, fetch func(context.Context) (T, error), apply func(T), onError func(error)) Task {
	return Task{
		Name:   name,
		Period: period,
		Fetch: func(ctx context.Context) (any, error) {
			return fetch(ctx)
		},
		Apply: func(v any) {
			apply(v.(T))
		},
		OnError: onError,
	}
}

// Stats counts what a task did. MaxInFlight above one means calls of the
// task overlapped.
type Stats struct {
	Runs        uint64 `json:"runs"`
	Failures    uint64 `json:"failures"`
	Skipped     uint64 `json:"skipped"`
	InFlight    int    `json:"in_flight"`
	MaxInFlight int    `json:"max_in_flight"`
}

type taskState struct {
	Task
	next  time.Time
	stats Stats
}

type result struct {
	name  string
	value any
	err   error
}

// Scheduler runs tasks on timers and on demand. Fetches run on their own
// goroutines; Apply and OnError always run on the scheduler loop, so results
// of one task land in completion order.
type Scheduler struct {
	clock      Clock
	visibility Visibility
	resolution time.Duration
	ctx        context.Context
	onResume   []string

	mu          sync.Mutex
	tasks       map[string]*taskState
	order       []string
	pending     map[string]bool
	lastVisible bool
	stopped     bool

	refreshCh chan struct{}
	results   chan result
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithVisibility(v Visibility) Option {
	return func(s *Scheduler) { s.visibility = v }
}

func WithResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.resolution = d
		}
	}
}

// WithContext sets the context handed to fetches. Stop does not cancel it.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// WithResumeRefresh names tasks refreshed when visibility comes back.
func WithResumeRefresh(names ...string) Option {
	return func(s *Scheduler) { s.onResume = append(s.onResume, names...) }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:       realClock{},
		visibility:  alwaysVisible{},
		resolution:  DefaultResolution,
		ctx:         context.Background(),
		tasks:       make(map[string]*taskState),
		pending:     make(map[string]bool),
		lastVisible: true,
		refreshCh:   make(chan struct{}, 1),
		results:     make(chan result, 16),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastVisible = s.visibility.Visible()
	return s
}

// Register adds a task. The first periodic run is one period from now.
func (s *Scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.Name]; !ok {
		s.order = append(s.order, t.Name)
	}
	ts := &taskState{Task: t}
	if t.Period > 0 {
		ts.next = s.clock.Now().Add(t.Period)
	}
	s.tasks[t.Name] = ts
}

// Start launches the loop. Calling it again has no effect.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

// Stop cancels future ticks and pending refreshes. In-flight fetches are not
// aborted; their results are dropped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		clear(s.pending)
		s.mu.Unlock()
		close(s.done)
	})
}

// Refresh asks for an out-of-band run of the named task. Requests made
// while one is pending coalesce into a single run.
func (s *Scheduler) Refresh(name string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, ok := s.tasks[name]; !ok {
		s.mu.Unlock()
		tool.DefaultLogger.Warnf("Refresh requested for unknown task %s", name)
		return
	}
	s.pending[name] = true
	s.mu.Unlock()
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Stats returns a copy of the counters of the named task.
func (s *Scheduler) Stats(name string) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.tasks[name]; ok {
		return ts.stats
	}
	return Stats{}
}

// AllStats returns the counters of every task.
func (s *Scheduler) AllStats() map[string]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Stats, len(s.tasks))
	for name, ts := range s.tasks {
		out[name] = ts.stats
	}
	return out
}

func (s *Scheduler) loop() {
	ticker := s.clock.NewTicker(s.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C():
			s.step(now)
		case <-s.refreshCh:
			s.runPending()
		case r := <-s.results:
			s.apply(r)
		}
	}
}

// step runs every periodic task that is due at now. A due task that cannot
// run because the view is hidden is counted as skipped and rescheduled.
func (s *Scheduler) step(now time.Time) {
	visible := s.visibility.Visible()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	resumed := visible && !s.lastVisible
	s.lastVisible = visible
	if resumed {
		for _, name := range s.onResume {
			if _, ok := s.tasks[name]; ok {
				s.pending[name] = true
			}
		}
	}

	var due []*taskState
	for _, name := range s.order {
		ts := s.tasks[name]
		if ts.Period <= 0 || now.Before(ts.next) {
			continue
		}
		ts.next = ts.next.Add(ts.Period)
		if !ts.next.After(now) {
			ts.next = now.Add(ts.Period)
		}
		if !visible {
			ts.stats.Skipped++
			continue
		}
		due = append(due, ts)
	}
	s.mu.Unlock()

	if resumed {
		tool.DefaultLogger.Debug("View visible again, refreshing")
		s.runPending()
	}
	for _, ts := range due {
		s.dispatch(ts)
	}
}

func (s *Scheduler) runPending() {
	visible := s.visibility.Visible()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	var run []*taskState
	for _, name := range s.order {
		if !s.pending[name] {
			continue
		}
		delete(s.pending, name)
		ts := s.tasks[name]
		if !visible {
			ts.stats.Skipped++
			continue
		}
		run = append(run, ts)
	}
	s.mu.Unlock()
	for _, ts := range run {
		s.dispatch(ts)
	}
}

func (s *Scheduler) dispatch(ts *taskState) {
	if ts.Enabled != nil && !ts.Enabled() {
		return
	}
	s.mu.Lock()
	ts.stats.Runs++
	ts.stats.InFlight++
	if ts.stats.InFlight > ts.stats.MaxInFlight {
		ts.stats.MaxInFlight = ts.stats.InFlight
	}
	s.mu.Unlock()

	go func(name string, fetch func(context.Context) (any, error)) {
		v, err := fetch(s.ctx)
		select {
		case s.results <- result{name: name, value: v, err: err}:
		case <-s.done:
		}
	}(ts.Name, ts.Fetch)
}

func (s *Scheduler) apply(r result) {
	s.mu.Lock()
	ts, ok := s.tasks[r.name]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	ts.stats.InFlight--
	if r.err != nil {
		ts.stats.Failures++
	}
	s.mu.Unlock()

	if r.err != nil {
		tool.DefaultLogger.Debugf("Task %s failed: %v", r.name, r.err)
		if ts.OnError != nil {
			ts.OnError(r.err)
		}
		return
	}
	if ts.Apply != nil {
		ts.Apply(r.value)
	}
}
