package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdleExpired(t *testing.T) {
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"activity just now", base, false},
		{"inside the window", base.Add(29 * time.Minute), false},
		{"exactly at the window", base.Add(30 * time.Minute), false},
		{"past the window", base.Add(30*time.Minute + time.Second), true},
		{"long idle", base.Add(24 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IdleExpired(base, tt.now, window))
		})
	}
}

func TestIdleExpiredZeroWindowNeverExpires(t *testing.T) {
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	assert.False(t, IdleExpired(base, base.Add(1000*time.Hour), 0))
}

func TestTrackerTouchResetsIdle(t *testing.T) {
	current := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	tracker := NewTracker(30 * time.Minute).WithClock(now)
	assert.False(t, tracker.Expired())

	current = current.Add(31 * time.Minute)
	assert.True(t, tracker.Expired())

	tracker.Touch()
	assert.False(t, tracker.Expired())
	assert.Equal(t, current, tracker.LastActivity())
}

func TestTrackerNotifiesSubscribers(t *testing.T) {
	current := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	tracker := NewTracker(time.Minute).WithClock(func() time.Time { return current })

	var notified []time.Time
	tracker.Subscribe(func(last time.Time) {
		notified = append(notified, last)
	})

	tracker.Touch()
	current = current.Add(10 * time.Second)
	tracker.Touch()

	assert.Len(t, notified, 2)
	assert.Equal(t, current, notified[1])
}
