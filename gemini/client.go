/*
Package gemini is the justification client: it asks the Gemini REST API
to corroborate a rules-engine decision in structured JSON plus a short
coordinator message.

PURPOSE:
  One Justify call per site. Each attempt takes a fresh key from the
  rotating CredentialPool, posts a generateContent request over plain
  HTTP, and validates the reply against the structured_result schema.
  Failures cool the key down, back off with jitter, and rotate; a call
  that exhausts its attempts returns a degraded Justification so the
  caller still ships the rules decision.

KEY CONCEPTS:
  - A failed justification is NEVER a failed site: the returned
    Justification carries Failed/FailureCause and the rules decision
    stands on its own.
  - API keys never appear in errors or logs; they travel only in the
    request query string and are redacted from any echoed message.
  - The clock, sleeper, and jitter source are injectable so retry
    behavior is testable without waiting.
*/
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/supply-engine/supply"
)

// errBadReply marks a reply that arrived but failed schema validation.
// Retryable (the model may produce valid JSON next time) but not a
// capacity problem.
var errBadReply = errors.New("malformed model reply")

// Client talks to the generateContent endpoint with key rotation.
type Client struct {
	pool  *CredentialPool
	http  *http.Client
	log   *zap.Logger
	model string
	base  string

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	perCallTimeout time.Duration

	// Test seams.
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	jitter func() float64
}

// New builds a Client from the run configuration. The pool may be empty;
// Justify then degrades immediately.
func New(cfg supply.Config, pool *CredentialPool, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		pool:           pool,
		http:           &http.Client{},
		log:            log,
		model:          cfg.Model,
		base:           strings.TrimRight(cfg.BaseURL, "/"),
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff(),
		maxBackoff:     cfg.MaxBackoff(),
		perCallTimeout: cfg.PerCallTimeout(),
		now:            time.Now,
		sleep:          sleepCtx,
		jitter:         rand.Float64,
	}
}

// Justify requests a justification for one site's decision. The returned
// Justification is always usable; on final failure it carries the failure
// marker and the error is a *supply.JustificationError.
func (c *Client) Justify(ctx context.Context, req Request) (supply.Justification, error) {
	start := c.now()
	siteID := req.Features.SiteID

	fail := func(attempts int, cause error) (supply.Justification, error) {
		jerr := &supply.JustificationError{
			SiteID:    siteID,
			Attempts:  attempts,
			Transient: transientFailure(cause),
			Last:      cause,
		}
		return supply.Justification{
			LatencyMS:    c.elapsedMS(start),
			Failed:       true,
			FailureCause: jerr.Error(),
		}, jerr
	}

	if c.pool == nil || c.pool.Size() == 0 {
		return fail(0, ErrNoCredentials)
	}

	prompt := buildPrompt(req)
	bo := &backoff{initial: c.initialBackoff, max: c.maxBackoff, jitter: c.jitter}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		key, err := c.pool.Next()
		if err != nil {
			return fail(attempts, err)
		}
		attempts = attempt

		reply, err := c.callOnce(ctx, key, prompt)
		if err == nil {
			c.pool.MarkSuccess(key)
			j := supply.Justification{
				Structured:   reply.structured(),
				DraftMessage: reply.DraftMessage,
				LatencyMS:    c.elapsedMS(start),
			}
			c.log.Debug("justification succeeded",
				zap.String("site_id", string(siteID)),
				zap.Int("attempt", attempt),
				zap.Float64("latency_ms", j.LatencyMS))
			return j, nil
		}

		lastErr = redactKey(err, key)
		c.pool.MarkFailure(key, classify(err))
		c.log.Warn("justification attempt failed",
			zap.String("site_id", string(siteID)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if !retryable(err) || attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, bo.next()); err != nil {
			lastErr = err
			break
		}
	}
	return fail(attempts, lastErr)
}

func (c *Client) elapsedMS(start time.Time) float64 {
	return float64(c.now().Sub(start)) / float64(time.Millisecond)
}

// callOnce performs one HTTP attempt under the per-call timeout.
func (c *Client) callOnce(ctx context.Context, key, prompt string) (*modelReply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.perCallTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      0,
			MaxOutputTokens:  1024,
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return nil, &callError{err: err}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.base, c.model, url.QueryEscape(key))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &callError{err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &callError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &callError{status: resp.StatusCode, err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &callError{status: resp.StatusCode, err: apiMessage(raw, resp.StatusCode)}
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &callError{err: fmt.Errorf("%w: %v", errBadReply, err)}
	}
	text := gr.text()
	if text == "" {
		return nil, &callError{err: fmt.Errorf("%w: empty candidate", errBadReply)}
	}
	return parseReply(text)
}

// apiMessage extracts the server-side error message when the body carries
// one, falling back to the bare status.
func apiMessage(raw []byte, status int) error {
	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err == nil && gr.Error != nil {
		return fmt.Errorf("%s: %s", gr.Error.Status, gr.Error.Message)
	}
	return fmt.Errorf("http status %d", status)
}

// text joins the text parts of the first candidate.
func (gr *generateResponse) text() string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// parseReply validates the model's JSON document against the expected
// schema. Any deviation is errBadReply and triggers a retry.
func parseReply(text string) (*modelReply, error) {
	// Tolerate a fenced block even though the MIME type forbids it.
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var mr modelReply
	if err := json.Unmarshal([]byte(text), &mr); err != nil {
		return nil, &callError{err: fmt.Errorf("%w: %v", errBadReply, err)}
	}
	sr := mr.StructuredResult
	if sr == nil {
		return nil, &callError{err: fmt.Errorf("%w: missing structured_result", errBadReply)}
	}
	switch supply.Action(sr.Action) {
	case supply.ActionResupply, supply.ActionNoResupply:
	default:
		return nil, &callError{err: fmt.Errorf("%w: unknown action %q", errBadReply, sr.Action)}
	}
	if sr.Quantity == nil || *sr.Quantity < 0 {
		return nil, &callError{err: fmt.Errorf("%w: missing or negative quantity", errBadReply)}
	}
	if sr.Confidence == nil {
		return nil, &callError{err: fmt.Errorf("%w: missing confidence", errBadReply)}
	}
	return &mr, nil
}

// structured converts the validated wire form to the domain form,
// clamping confidence into [0,1].
func (mr *modelReply) structured() *supply.StructuredResult {
	sr := mr.StructuredResult
	conf := *sr.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	reasons := sr.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &supply.StructuredResult{
		Action:     supply.Action(sr.Action),
		Quantity:   *sr.Quantity,
		Confidence: conf,
		Reasons:    reasons,
	}
}
