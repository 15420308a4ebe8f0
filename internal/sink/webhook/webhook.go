// Package webhook posts session events to HTTP endpoints, signing each body
// with HMAC-SHA256 when a secret is configured.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/waabox/pakdeck/internal/domain"
)

const (
	// SignatureHeader carries "sha256=<hex hmac of the body>".
	SignatureHeader = "X-Pakdeck-Signature"
	EventHeader     = "X-Pakdeck-Event"
	TimestampHeader = "X-Pakdeck-Timestamp"

	userAgent = "pakdeck-webhook/1.0"
)

// Config describes one webhook endpoint.
type Config struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Defaults for zero Config fields.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// Payload is the JSON body posted for each event.
type Payload struct {
	Event     domain.EventType `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	Data      domain.Event     `json:"data"`
}

// Sink delivers events to a single endpoint.
type Sink struct {
	cfg    Config
	client *http.Client
}

// NewSink creates a webhook sink. Zero timeout and delay take the defaults;
// a negative MaxRetries disables retries.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Sink{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "webhook " + s.cfg.URL }

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Emit implements sink.Sink. Transport errors, 429 and 5xx responses are
// retried up to MaxRetries times; other 4xx responses are not.
func (s *Sink) Emit(ctx context.Context, e domain.Event) error {
	now := time.Now().UTC()
	body, err := json.Marshal(Payload{Event: e.Type, Timestamp: now, Data: e})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	op := func() error {
		retry, err := s.post(ctx, e.Type, now, body)
		if err != nil && !retry {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), uint64(s.cfg.MaxRetries))
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (s *Sink) post(ctx context.Context, typ domain.EventType, at time.Time, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(EventHeader, string(typ))
	req.Header.Set(TimestampHeader, strconv.FormatInt(at.Unix(), 10))
	if s.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.cfg.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retry, fmt.Errorf("webhook returned status %d", resp.StatusCode)
}
