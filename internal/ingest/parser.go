// Package ingest turns raw inbound email into persisted, threaded, and
// trust-gated messages. Raw bytes arrive from the HTTP listener or the IMAP
// poller; the pipeline is the same for both.
package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/threading"
)

// InboundAttachment is one decoded attachment from an inbound message.
type InboundAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// InboundEmail is the parsed envelope the pipeline consumes.
type InboundEmail struct {
	From       string
	To         []string
	Cc         []string
	Subject    string
	MessageID  string
	InReplyTo  string
	References []string
	Text       string
	HTML       string
	// Headers carries the auxiliary headers worth keeping for threading
	// and reply construction, not the full header block.
	Headers     map[string]string
	Attachments []InboundAttachment
}

// keptHeaders are the auxiliary headers preserved on the message row.
var keptHeaders = []string{"References", "In-Reply-To", "Reply-To", "List-Id"}

// Parse decodes raw RFC 5322 bytes into an InboundEmail using enmime. The
// sender address is normalized to lowercase; a message without a parseable
// sender is rejected.
func Parse(raw []byte) (*InboundEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing inbound message: %w", err)
	}

	from := extractAddress(env.GetHeader("From"))
	if from == "" {
		return nil, fmt.Errorf("inbound message has no sender address")
	}

	in := &InboundEmail{
		From:       store.NormalizeEmail(from),
		To:         extractAddressList(env.GetHeader("To")),
		Cc:         extractAddressList(env.GetHeader("Cc")),
		Subject:    env.GetHeader("Subject"),
		MessageID:  strings.TrimSpace(env.GetHeader("Message-Id")),
		InReplyTo:  strings.TrimSpace(env.GetHeader("In-Reply-To")),
		References: threading.ParseReferences(env.GetHeader("References")),
		Text:       env.Text,
		HTML:       env.HTML,
		Headers:    map[string]string{},
	}

	for _, name := range keptHeaders {
		if v := env.GetHeader(name); v != "" {
			in.Headers[name] = v
		}
	}

	for _, part := range env.Attachments {
		in.Attachments = append(in.Attachments, InboundAttachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Content:     part.Content,
		})
	}

	return in, nil
}

// extractAddress pulls the bare address out of a header value that may carry
// a display name ("Alice <alice@example.com>" or "alice@example.com").
func extractAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if open := strings.LastIndex(value, "<"); open >= 0 {
		if close := strings.Index(value[open:], ">"); close > 0 {
			return strings.TrimSpace(value[open+1 : open+close])
		}
	}
	return value
}

// extractAddressList splits a comma-separated address header into bare
// addresses.
func extractAddressList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if addr := extractAddress(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
