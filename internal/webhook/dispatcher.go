// Package webhook implements the outbound notification dispatcher and the
// delivery-status callback listener.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatemail-dev/gatemail/internal/logging"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Gatemail-Signature"

// EventMessageReceived is emitted once per ingested inbound message.
const EventMessageReceived = "message.received"

// Envelope is the wire shape of an outbound notification.
type Envelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher posts signed event envelopes to a configured URL. Dispatch is
// fire-and-forget: it runs detached from the ingestion that triggered it,
// failures are logged and never retried, and an unset URL disables it
// entirely.
type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. An empty url yields a no-op dispatcher.
func NewDispatcher(url, secret string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether a target URL is configured.
func (d *Dispatcher) Enabled() bool {
	return d.url != ""
}

// Notify dispatches the event in a new goroutine and returns immediately.
// The caller's context is deliberately not used so that ingestion completing
// (or its request being cancelled) cannot abort the notification.
func (d *Dispatcher) Notify(event string, data any) {
	if !d.Enabled() {
		return
	}
	go d.deliver(event, data)
}

func (d *Dispatcher) deliver(event string, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.Send(ctx, event, data); err != nil {
		d.logger.Warn("webhook delivery failed",
			logging.Event(event),
			logging.Err(err),
		)
	}
}

// Send posts one event envelope synchronously. Exposed separately from
// Notify so tests and callers that want the error can use it directly.
func (d *Dispatcher) Send(ctx context.Context, event string, data any) error {
	env := Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set(SignatureHeader, Sign(d.secret, payload))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	d.logger.Debug("webhook delivered", logging.Event(event))
	return nil
}

// Sign computes the hex HMAC-SHA256 of payload under the shared secret.
// Receivers recompute it over the raw body bytes and compare.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a received signature against the recomputed one
// in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
