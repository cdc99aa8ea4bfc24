/*
retry.go - Backoff schedule and failure classification

Exponential backoff with jitter between attempts, plus the mapping from
an HTTP/transport failure to a pool cool-down kind and a retry decision.
Sleeping is context-aware so a batch deadline cuts a retry loop short.
*/
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// callError carries the HTTP status (0 for transport errors) alongside
// the underlying cause so the retry loop can classify it.
type callError struct {
	status int
	err    error
}

func (e *callError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("gemini call failed (status %d): %v", e.status, e.err)
	}
	return fmt.Sprintf("gemini call failed: %v", e.err)
}

func (e *callError) Unwrap() error { return e.err }

// classify maps a call failure to the pool cool-down kind.
func classify(err error) FailureKind {
	var ce *callError
	if errors.As(err, &ce) {
		switch ce.status {
		case http.StatusTooManyRequests:
			return FailureRateLimit
		case http.StatusServiceUnavailable:
			return FailureUnavailable
		case http.StatusUnauthorized, http.StatusForbidden:
			return FailureAuth
		}
	}
	return FailureOther
}

// retryable reports whether the failure is worth another attempt with a
// rotated key. Hard request errors (bad model, malformed payload) are not;
// auth failures are, since the next key in the pool may still be valid.
func retryable(err error) bool {
	var ce *callError
	if errors.As(err, &ce) {
		switch ce.status {
		case http.StatusBadRequest, http.StatusNotFound:
			return false
		}
	}
	return true
}

// transientFailure reports whether the final error was a capacity or
// timing problem rather than a request or credential defect.
func transientFailure(err error) bool {
	switch classify(err) {
	case FailureRateLimit, FailureUnavailable:
		return true
	case FailureOther:
		return !errors.Is(err, errBadReply)
	}
	return false
}

// backoff yields the wait before each retry: initial * 2^(attempt-1),
// capped at max, scaled by a jitter factor in [0.5, 1.0).
type backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
	jitter  func() float64 // returns [0,1); injectable for tests
}

func (b *backoff) next() time.Duration {
	d := b.initial << uint(b.attempt)
	if b.max > 0 && d > b.max {
		d = b.max
	}
	b.attempt++
	if b.jitter != nil {
		d = time.Duration(float64(d) * (0.5 + b.jitter()/2))
	}
	return d
}

// sleepCtx waits for d or until the context ends, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// sanitizeKey redacts an API key wherever it leaked into an error string.
func sanitizeKey(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, key, "[redacted]")
}

// redactKey rebuilds a callError with the key scrubbed from its message
// while keeping the status and the errBadReply chain intact, so the
// failure still classifies correctly after redaction.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	var ce *callError
	if !errors.As(err, &ce) {
		return err
	}
	msg := sanitizeKey(ce.err.Error(), key)
	if msg == ce.err.Error() {
		return err
	}
	inner := errors.New(msg)
	if errors.Is(ce.err, errBadReply) {
		inner = fmt.Errorf("%w%s", errBadReply, strings.TrimPrefix(msg, errBadReply.Error()))
	}
	return &callError{status: ce.status, err: inner}
}
