// Package session models the client-visible idle-timeout contract as an
// explicit object instead of ambient storage polled by interval. Idle expiry
// is a pure function of (lastActivity, now, idleWindow); the Tracker adds an
// injected clock and subscribe/notify semantics for consumers that need a
// callback when activity marks the session live again.
package session

import (
	"sync"
	"time"
)

// IdleExpired reports whether a session idle since lastActivity has exceeded
// the idle window at instant now
func IdleExpired(lastActivity, now time.Time, idleWindow time.Duration) bool {
	if idleWindow <= 0 {
		return false
	}
	return now.Sub(lastActivity) > idleWindow
}

// Tracker tracks last-activity time for one session
type Tracker struct {
	mu           sync.Mutex
	lastActivity time.Time
	idleWindow   time.Duration
	now          func() time.Time
	subscribers  []func(lastActivity time.Time)
}

// NewTracker creates a tracker with the given idle window, marked active now
func NewTracker(idleWindow time.Duration) *Tracker {
	t := &Tracker{
		idleWindow: idleWindow,
		now:        time.Now,
	}
	t.lastActivity = t.now()
	return t
}

// WithClock overrides the clock, for tests. Resets last activity to the new
// clock's now.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.lastActivity = now()
	return t
}

// Touch records activity and notifies subscribers
func (t *Tracker) Touch() {
	t.mu.Lock()
	t.lastActivity = t.now()
	last := t.lastActivity
	subs := make([]func(time.Time), len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(last)
	}
}

// Expired reports whether the session has idled out
func (t *Tracker) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return IdleExpired(t.lastActivity, t.now(), t.idleWindow)
}

// LastActivity returns the recorded last-activity time
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// Subscribe registers a callback invoked on every Touch
func (t *Tracker) Subscribe(fn func(lastActivity time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}
