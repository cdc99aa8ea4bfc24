/*
pool.go - Rotating credential pool

PURPOSE:
  Holds the ordered set of interchangeable Gemini API keys (1-4 in
  production) and hands them out round-robin. A key that fails in a way
  attributable to the key itself (quota, auth, service rejection) is
  cooled down and skipped until its cool-down lapses; when every key is
  cooling, all cool-downs reset so the batch degrades per-request instead
  of deadlocking.

CONCURRENCY:
  The pool is the single shared mutable resource of a batch run. All
  rotation state (cursor, failure counters, cool-down stamps) sits behind
  one mutex; parallel site workers call Next/MarkFailure/MarkSuccess
  freely. The clock is injectable for tests.
*/
package gemini

import (
	"errors"
	"sync"
	"time"
)

// ErrNoCredentials is returned by Next when the pool was built with no keys.
var ErrNoCredentials = errors.New("no API credentials configured")

// FailureKind classifies a failed attempt for cool-down sizing.
type FailureKind int

const (
	FailureRateLimit   FailureKind = iota // 429: longest cool-down
	FailureUnavailable                    // 503
	FailureAuth                           // 401/403: key likely revoked or over quota
	FailureOther                          // timeouts, transport errors, malformed replies
)

// Cool-down spans per failure kind. FailureOther has no entry: those
// causes are not attributable to the credential, so the key is never
// cooled for them (plain retries cover transient blips).
var cooldowns = map[FailureKind]time.Duration{
	FailureRateLimit:   60 * time.Second,
	FailureUnavailable: 30 * time.Second,
	FailureAuth:        120 * time.Second,
}

type credential struct {
	key       string
	failures  int // consecutive failures; reset on success
	coolUntil time.Time
}

// CredentialPool rotates API keys round-robin with per-key cool-downs.
// Construct with NewCredentialPool and inject into the Client.
type CredentialPool struct {
	mu     sync.Mutex
	keys   []credential
	cursor int
	now    func() time.Time
}

// NewCredentialPool builds a pool over the given keys, preserving order.
func NewCredentialPool(keys []string) *CredentialPool {
	p := &CredentialPool{now: time.Now}
	for _, k := range keys {
		if k != "" {
			p.keys = append(p.keys, credential{key: k})
		}
	}
	return p
}

// Size reports how many credentials the pool holds.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Next returns the next usable key, round-robin. Keys inside their
// cool-down window are skipped; if every key is cooling, all cool-downs
// reset and rotation continues (degrading per request beats stalling the
// whole batch).
func (p *CredentialPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", ErrNoCredentials
	}

	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		c := &p.keys[p.cursor%len(p.keys)]
		p.cursor++
		if !c.coolUntil.After(now) {
			return c.key, nil
		}
	}

	// All keys cooling: reset and take the next in rotation.
	for i := range p.keys {
		p.keys[i].coolUntil = time.Time{}
	}
	c := &p.keys[p.cursor%len(p.keys)]
	p.cursor++
	return c.key, nil
}

// MarkFailure records a failed attempt against a key. Only key-attributable
// kinds start a cool-down; FailureOther is counted but leaves the key in
// rotation.
func (p *CredentialPool) MarkFailure(key string, kind FailureKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.keys {
		if p.keys[i].key != key {
			continue
		}
		p.keys[i].failures++
		if d, ok := cooldowns[kind]; ok {
			p.keys[i].coolUntil = p.now().Add(d)
		}
		return
	}
}

// MarkSuccess clears a key's consecutive-failure count.
func (p *CredentialPool) MarkSuccess(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.keys {
		if p.keys[i].key == key {
			p.keys[i].failures = 0
			return
		}
	}
}

// Failures reports a key's consecutive failure count (test hook).
func (p *CredentialPool) Failures(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.keys {
		if p.keys[i].key == key {
			return p.keys[i].failures
		}
	}
	return 0
}
