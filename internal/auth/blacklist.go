package auth

import (
	"sync"
	"time"
)

// Blacklist holds revoked session token IDs (jti) until their natural expiry.
// Logout and setup completion revoke tokens here; the auth middleware checks
// it on every request. Entries are purged lazily on access.
type Blacklist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> token expiry
	now     func() time.Time
}

// NewBlacklist creates an empty blacklist
func NewBlacklist() *Blacklist {
	return &Blacklist{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the clock, for tests
func (b *Blacklist) WithClock(now func() time.Time) *Blacklist {
	b.now = now
	return b
}

// Revoke marks a token ID as invalid until expiresAt
func (b *Blacklist) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = expiresAt
	b.purgeLocked()
}

// Revoked reports whether the token ID has been revoked
func (b *Blacklist) Revoked(jti string) bool {
	if jti == "" {
		return false
	}
	b.mu.RLock()
	expiresAt, ok := b.revoked[jti]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	if b.now().After(expiresAt) {
		// Token expired on its own; the entry is no longer needed
		b.mu.Lock()
		delete(b.revoked, jti)
		b.mu.Unlock()
		return false
	}
	return true
}

// purgeLocked drops entries whose tokens have expired; callers hold b.mu
func (b *Blacklist) purgeLocked() {
	now := b.now()
	for jti, expiresAt := range b.revoked {
		if now.After(expiresAt) {
			delete(b.revoked, jti)
		}
	}
}
