package auth

import (
	"sync"
	"time"
)

// Lockout enforces a time-boxed lockout after repeated failed administrator
// password attempts from the same network origin. Enforcement is server-side;
// the remaining time is surfaced to the client. The clock is injected so the
// window arithmetic is testable.
type Lockout struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	duration    time.Duration
	now         func() time.Time
	origins     map[string]*originState
}

type originState struct {
	failures    []time.Time
	lockedUntil time.Time
}

// NewLockout creates a tracker allowing maxAttempts failures within window
// before locking the origin out for duration
func NewLockout(maxAttempts int, window, duration time.Duration) *Lockout {
	return &Lockout{
		maxAttempts: maxAttempts,
		window:      window,
		duration:    duration,
		now:         time.Now,
		origins:     make(map[string]*originState),
	}
}

// WithClock overrides the clock, for tests
func (l *Lockout) WithClock(now func() time.Time) *Lockout {
	l.now = now
	return l
}

// Remaining returns how long the origin stays locked out; zero means the
// origin may attempt authentication
func (l *Lockout) Remaining(origin string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.origins[origin]
	if !ok {
		return 0
	}
	if remaining := state.lockedUntil.Sub(l.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// RecordFailure registers a failed attempt and returns the lockout remaining
// after it (zero while under the threshold)
func (l *Lockout) RecordFailure(origin string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.origins[origin]
	if !ok {
		state = &originState{}
		l.origins[origin] = state
	}

	// Drop failures outside the rolling window
	cutoff := now.Add(-l.window)
	kept := state.failures[:0]
	for _, t := range state.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	state.failures = append(kept, now)

	if len(state.failures) >= l.maxAttempts {
		state.lockedUntil = now.Add(l.duration)
		state.failures = nil
		return l.duration
	}
	return 0
}

// RecordSuccess clears the origin's failure history. A success during an
// active lockout does not lift it; the lockout applies independent of the
// password's correctness.
func (l *Lockout) RecordSuccess(origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.origins[origin]
	if !ok {
		return
	}
	state.failures = nil
	if !state.lockedUntil.After(l.now()) {
		delete(l.origins, origin)
	}
}
