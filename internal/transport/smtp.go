package transport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPTransport submits mail directly over SMTP. Since SMTP servers do not
// echo an identifier back, the transport assigns the Message-ID itself and
// reports it as the provider message id.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport creates an SMTP submission transport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPTransport{cfg: cfg}
}

var _ Transport = (*SMTPTransport)(nil)

func (t *SMTPTransport) Name() string { return string(KindSMTP) }

// Capabilities: SMTP passes any header verbatim.
func (t *SMTPTransport) Capabilities() Capabilities {
	return Capabilities{SupportsArbitraryHeaders: true}
}

// Send builds the MIME message and submits it. Returns the generated
// Message-ID on success.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	messageID := generateMessageID(msg.From)

	raw, err := buildMIME(msg, messageID)
	if err != nil {
		return "", &SendError{Transport: t.Name(), Err: err}
	}

	if err := t.submit(ctx, msg.From, msg.Recipients(), raw); err != nil {
		return "", &SendError{Transport: t.Name(), Err: err}
	}
	return messageID, nil
}

func (t *SMTPTransport) submit(_ context.Context, from string, rcpts []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)

	var c *smtp.Client
	var err error
	if t.cfg.ImplicitTLS {
		c, err = smtp.DialTLS(addr, nil)
	} else {
		c, err = smtp.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer c.Close()

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("authenticating as %s: %w", t.cfg.Username, err)
		}
	}

	if err := c.SendMail(from, rcpts, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("submitting message: %w", err)
	}
	return c.Quit()
}

// buildMIME renders the outbound message as an RFC 5322 document with the
// given Message-ID.
func buildMIME(msg *Message, messageID string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.Set("Message-Id", messageID)

	from, err := mail.ParseAddressList(msg.From)
	if err != nil {
		return nil, fmt.Errorf("parsing from address: %w", err)
	}
	h.SetAddressList("From", from)

	if to, err := parseAddresses(msg.To); err == nil && len(to) > 0 {
		h.SetAddressList("To", to)
	}
	if cc, err := parseAddresses(msg.Cc); err == nil && len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	if msg.ReplyTo != "" {
		if rt, err := mail.ParseAddressList(msg.ReplyTo); err == nil {
			h.SetAddressList("Reply-To", rt)
		}
	}
	for name, value := range msg.Headers {
		h.Set(name, value)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating mime writer: %w", err)
	}

	inline, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline part: %w", err)
	}
	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := inline.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if _, err := pw.Write([]byte(msg.Text)); err != nil {
		return nil, fmt.Errorf("writing text part: %w", err)
	}
	pw.Close()
	inline.Close()

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		ah.SetFilename(att.Filename)
		if att.ContentType != "" {
			ah.Set("Content-Type", att.ContentType)
		}
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("creating attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", att.Filename, err)
		}
		aw.Close()
	}

	mw.Close()
	return buf.Bytes(), nil
}

// parseAddresses parses a slice of address strings into a single list.
func parseAddresses(addrs []string) ([]*mail.Address, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	return mail.ParseAddressList(strings.Join(addrs, ", "))
}

// generateMessageID builds a unique RFC 5322 Message-ID using the sender's
// domain.
func generateMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimSuffix(strings.TrimSpace(from[at+1:]), ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
