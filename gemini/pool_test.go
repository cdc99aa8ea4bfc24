package gemini

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time            { return c.t }
func (c *fakeClock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func newTestPool(t *testing.T, keys ...string) (*CredentialPool, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	p := NewCredentialPool(keys)
	p.now = clk.now
	return p, clk
}

func TestPoolRoundRobin(t *testing.T) {
	// GIVEN a pool of three keys
	p, _ := newTestPool(t, "k1", "k2", "k3")

	// WHEN keys are drawn repeatedly
	var got []string
	for i := 0; i < 6; i++ {
		k, err := p.Next()
		require.NoError(t, err)
		got = append(got, k)
	}

	// THEN rotation is strict round-robin
	assert.Equal(t, []string{"k1", "k2", "k3", "k1", "k2", "k3"}, got)
}

func TestPoolSkipsCoolingKey(t *testing.T) {
	// GIVEN k1 just failed with a rate limit
	p, clk := newTestPool(t, "k1", "k2")
	p.MarkFailure("k1", FailureRateLimit)

	// WHEN the next two keys are drawn
	k, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "k2", k)
	k, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "k2", k, "k1 still cooling, k2 drawn again")

	// AND WHEN the 60s rate-limit cool-down lapses
	clk.advance(61 * time.Second)

	// THEN k1 rejoins the rotation
	k, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "k1", k)
}

func TestPoolCooldownVariesByFailureKind(t *testing.T) {
	// GIVEN one key per cooling failure kind
	p, clk := newTestPool(t, "rate", "unavail", "auth")
	p.MarkFailure("rate", FailureRateLimit)      // 60s
	p.MarkFailure("unavail", FailureUnavailable) // 30s
	p.MarkFailure("auth", FailureAuth)           // 120s

	// WHEN 35 seconds pass
	clk.advance(35 * time.Second)

	// THEN only the 30s cool-down has lapsed
	k, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "unavail", k)
}

func TestPoolOtherFailuresNeverCool(t *testing.T) {
	// GIVEN a key that failed for a cause not tied to the credential
	// (timeout, transport error, malformed reply)
	p, _ := newTestPool(t, "k1", "k2")
	p.MarkFailure("k1", FailureOther)

	// THEN the key stays in rotation immediately
	k, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "k1", k)
	// AND the failure is still counted
	assert.Equal(t, 1, p.Failures("k1"))
}

func TestPoolResetsWhenAllKeysCooling(t *testing.T) {
	// GIVEN every key cooling
	p, _ := newTestPool(t, "k1", "k2")
	p.MarkFailure("k1", FailureRateLimit)
	p.MarkFailure("k2", FailureRateLimit)

	// WHEN a key is requested anyway
	k, err := p.Next()

	// THEN the pool resets instead of stalling
	require.NoError(t, err)
	assert.NotEmpty(t, k)
}

func TestPoolEmpty(t *testing.T) {
	p := NewCredentialPool(nil)
	_, err := p.Next()
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, 0, p.Size())
}

func TestPoolFailureCountResetsOnSuccess(t *testing.T) {
	p, _ := newTestPool(t, "k1")
	p.MarkFailure("k1", FailureOther)
	p.MarkFailure("k1", FailureOther)
	assert.Equal(t, 2, p.Failures("k1"))

	p.MarkSuccess("k1")
	assert.Equal(t, 0, p.Failures("k1"))
}
