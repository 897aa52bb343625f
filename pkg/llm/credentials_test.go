package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialRingRoundRobin(t *testing.T) {
	ring, err := newCredentialRing([]string{"key-a", "key-b", "key-c"})
	require.NoError(t, err)

	now := time.Now()
	assert.Equal(t, "key-a", ring.next(now))
	assert.Equal(t, "key-b", ring.next(now))
	assert.Equal(t, "key-c", ring.next(now))
	assert.Equal(t, "key-a", ring.next(now))
}

func TestCredentialRingEmpty(t *testing.T) {
	_, err := newCredentialRing(nil)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestCredentialRingSkipsCooldown(t *testing.T) {
	ring, err := newCredentialRing([]string{"key-a", "key-b"})
	require.NoError(t, err)

	now := time.Now()
	require.Equal(t, "key-a", ring.next(now))
	ring.penalize("key-a", now)

	// key-a is cooling; both slots should serve key-b.
	assert.Equal(t, "key-b", ring.next(now))
	assert.Equal(t, "key-b", ring.next(now))

	// After the base cooldown expires, key-a returns to rotation.
	later := now.Add(cooldownBase + time.Second)
	got := map[string]bool{}
	got[ring.next(later)] = true
	got[ring.next(later)] = true
	assert.True(t, got["key-a"])
	assert.True(t, got["key-b"])
}

func TestCredentialRingExponentialPenaltyCapped(t *testing.T) {
	ring, err := newCredentialRing([]string{"key-a"})
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 10; i++ {
		ring.penalize("key-a", now)
	}
	c := ring.creds[0]
	assert.Equal(t, cooldownCap, c.penalty)
	assert.True(t, c.cooldownUntil.Sub(now) <= cooldownCap)
}

func TestCredentialRingAllCoolingReturnsSoonest(t *testing.T) {
	ring, err := newCredentialRing([]string{"key-a", "key-b"})
	require.NoError(t, err)

	now := time.Now()
	ring.penalize("key-a", now)
	// Penalize key-b twice so its deadline lands later than key-a's.
	ring.penalize("key-b", now)
	ring.penalize("key-b", now)

	assert.Equal(t, "key-a", ring.next(now))
	assert.False(t, ring.available(now))
}

func TestCredentialRingRewardResets(t *testing.T) {
	ring, err := newCredentialRing([]string{"key-a"})
	require.NoError(t, err)

	now := time.Now()
	ring.penalize("key-a", now)
	ring.penalize("key-a", now)
	require.False(t, ring.available(now))

	ring.reward("key-a")
	assert.True(t, ring.available(now))
	assert.Equal(t, cooldownBase, ring.creds[0].penalty)
}
