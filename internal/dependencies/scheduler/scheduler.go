package scheduler

import (
	"sync"
	"time"
)

// Scheduler schedules cancellable deferred callbacks keyed by an owner
// string (here, a room id). Scheduling for a key replaces any pending
// callback for that key; a fired or cancelled callback releases the key.
type Scheduler interface {
	// Schedule runs fn after d, replacing any pending callback for key
	Schedule(key string, d time.Duration, fn func())

	// Cancel drops any pending callback for key
	Cancel(key string)

	// CancelAll drops every pending callback
	CancelAll()
}

// TimerScheduler implements Scheduler with time.AfterFunc timers
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a new TimerScheduler
func New() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[string]*time.Timer),
	}
}

var _ Scheduler = (*TimerScheduler)(nil)

// Schedule runs fn after d, replacing any pending callback for key
func (s *TimerScheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[key]; ok {
		timer.Stop()
	}

	s.timers[key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops any pending callback for key
func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// CancelAll drops every pending callback
func (s *TimerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}
