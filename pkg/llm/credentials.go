package llm

import (
	"sync"
	"time"
)

const (
	cooldownBase = 30 * time.Second
	cooldownCap  = 10 * time.Minute
)

// credential is one API key with its rotation state. penalty holds the
// cooldown duration the next failure will impose.
type credential struct {
	key           string
	cooldownUntil time.Time
	penalty       time.Duration
}

// credentialRing selects credentials round-robin, skipping entries on
// cooldown. All methods are O(n) worst case over a short list and hold the
// mutex only for in-memory work, never across I/O.
type credentialRing struct {
	mu     sync.Mutex
	creds  []*credential
	cursor int
}

func newCredentialRing(keys []string) (*credentialRing, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	r := &credentialRing{creds: make([]*credential, 0, len(keys))}
	for _, k := range keys {
		r.creds = append(r.creds, &credential{key: k, penalty: cooldownBase})
	}
	return r, nil
}

// next returns the key to use for the upcoming call. Cooled-down entries
// are skipped; when every entry is cooling, the one expiring soonest is
// returned so callers never block on rotation.
func (r *credentialRing) next(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.creds)
	for i := 0; i < n; i++ {
		c := r.creds[(r.cursor+i)%n]
		if !now.Before(c.cooldownUntil) {
			r.cursor = (r.cursor + i + 1) % n
			return c.key
		}
	}

	best := r.creds[0]
	for _, c := range r.creds[1:] {
		if c.cooldownUntil.Before(best.cooldownUntil) {
			best = c
		}
	}
	return best.key
}

// penalize puts the credential on cooldown and doubles the next penalty,
// capped at cooldownCap.
func (r *credentialRing) penalize(key string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.creds {
		if c.key != key {
			continue
		}
		c.cooldownUntil = now.Add(c.penalty)
		c.penalty *= 2
		if c.penalty > cooldownCap {
			c.penalty = cooldownCap
		}
		return
	}
}

// reward clears the credential's cooldown state after a successful call.
func (r *credentialRing) reward(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.creds {
		if c.key != key {
			continue
		}
		c.cooldownUntil = time.Time{}
		c.penalty = cooldownBase
		return
	}
}

// available reports whether any credential is usable right now.
func (r *credentialRing) available(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.creds {
		if !now.Before(c.cooldownUntil) {
			return true
		}
	}
	return false
}

// size returns the number of credentials in the ring.
func (r *credentialRing) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creds)
}
