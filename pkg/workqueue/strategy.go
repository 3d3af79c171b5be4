package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy tracks running tasks per kind and decides when a new one may
// start.
type ConcurrencyStrategy interface {
	CanStart(kind TaskKind) bool
	OnStart(kind TaskKind)
	OnComplete(kind TaskKind)
}

// ParallelStrategy allows unlimited parallel tasks of every kind. Refresh
// work is already mutually excluded per data source by the executor's locks,
// so the queue itself does not need to serialize.
type ParallelStrategy struct{}

// NewParallelStrategy creates the unconstrained strategy.
func NewParallelStrategy() *ParallelStrategy {
	return &ParallelStrategy{}
}

func (s *ParallelStrategy) CanStart(TaskKind) bool { return true }
func (s *ParallelStrategy) OnStart(TaskKind)       {}
func (s *ParallelStrategy) OnComplete(TaskKind)    {}

// SerializedStrategy runs one task of each kind at a time. A data task and an
// assistant task may still run in parallel with each other.
type SerializedStrategy struct {
	mu      sync.Mutex
	running map[TaskKind]bool
}

// NewSerializedStrategy creates a strategy that serializes each task kind.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{running: make(map[TaskKind]bool)}
}

func (s *SerializedStrategy) CanStart(kind TaskKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running[kind]
}

func (s *SerializedStrategy) OnStart(kind TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[kind] = true
}

func (s *SerializedStrategy) OnComplete(kind TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[kind] = false
}

// ThrottledStrategy caps concurrent tasks per kind. A limit of 0 means
// unlimited for that kind.
type ThrottledStrategy struct {
	mu      sync.Mutex
	limits  map[TaskKind]int
	running map[TaskKind]int
}

// NewThrottledStrategy creates a strategy with per-kind concurrency caps.
func NewThrottledStrategy(maxData, maxAssistant int) *ThrottledStrategy {
	return &ThrottledStrategy{
		limits: map[TaskKind]int{
			KindData:      maxData,
			KindAssistant: maxAssistant,
		},
		running: make(map[TaskKind]int),
	}
}

func (s *ThrottledStrategy) CanStart(kind TaskKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.limits[kind]
	return limit <= 0 || s.running[kind] < limit
}

func (s *ThrottledStrategy) OnStart(kind TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[kind]++
}

func (s *ThrottledStrategy) OnComplete(kind TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[kind] > 0 {
		s.running[kind]--
	}
}
