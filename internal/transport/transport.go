// Package transport abstracts outbound email delivery. Two implementations
// exist: a direct SMTP submission client and an HTTP provider API client.
// Transports declare header capabilities so the composer can degrade by
// omitting headers a provider would reject instead of failing the send.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoTransport is the configuration error returned when no usable
// outbound transport is configured. Fatal to the call, never retried.
var ErrNoTransport = errors.New("no outbound transport configured")

// SendError wraps a provider-side dispatch failure. Nothing is persisted
// when a send fails.
type SendError struct {
	Transport string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failed: %v", e.Transport, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Attachment is an outbound attachment payload.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is the outbound wire contract handed to a transport.
type Message struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	ReplyTo     string
	Headers     map[string]string
	Attachments []Attachment
}

// Recipients returns all envelope recipients (to + cc + bcc).
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// Capabilities describes which headers a transport will pass through.
type Capabilities struct {
	// SupportsArbitraryHeaders is true when any header name may be set.
	SupportsArbitraryHeaders bool
	// AllowedHeaderPrefixes lists the header-name prefixes accepted when
	// arbitrary headers are not supported (e.g. "X-").
	AllowedHeaderPrefixes []string
}

// AllowsHeader reports whether a header with the given name passes through
// this transport.
func (c Capabilities) AllowsHeader(name string) bool {
	if c.SupportsArbitraryHeaders {
		return true
	}
	for _, prefix := range c.AllowedHeaderPrefixes {
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// Transport dispatches an outbound message and returns the provider-assigned
// message identifier.
type Transport interface {
	Name() string
	Capabilities() Capabilities
	Send(ctx context.Context, msg *Message) (providerMessageID string, err error)
}
