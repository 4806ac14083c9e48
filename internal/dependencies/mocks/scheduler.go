package mocks

import (
	"sync"
	"time"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/scheduler"
)

// MockScheduler captures scheduled callbacks so tests can fire them
// deterministically instead of waiting on real timers.
type MockScheduler struct {
	mu      sync.Mutex
	pending map[string]scheduledCall
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

// Ensure MockScheduler implements Scheduler
var _ scheduler.Scheduler = (*MockScheduler)(nil)

// NewMockScheduler creates an empty MockScheduler
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{pending: make(map[string]scheduledCall)}
}

// Schedule records fn as the pending callback for key
func (s *MockScheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = scheduledCall{delay: d, fn: fn}
}

// Cancel drops the pending callback for key
func (s *MockScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// CancelAll drops every pending callback
func (s *MockScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]scheduledCall)
}

// Fire runs and clears the pending callback for key, reporting whether
// one was pending.
func (s *MockScheduler) Fire(key string) bool {
	s.mu.Lock()
	call, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	call.fn()
	return true
}

// HasPending reports whether a callback is pending for key
func (s *MockScheduler) HasPending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// PendingDelay returns the delay the pending callback for key was
// scheduled with, or zero.
func (s *MockScheduler) PendingDelay(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[key].delay
}
