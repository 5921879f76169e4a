package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIBaseURL = "https://api.resend.com"

// APITransport dispatches mail through an HTTP provider API authenticated
// with a bearer key. The provider strips non-custom headers, so only
// X-prefixed headers are declared as supported; the composer omits the rest.
type APITransport struct {
	cfg        APIConfig
	httpClient *http.Client
}

// NewAPITransport creates an HTTP API transport.
func NewAPITransport(cfg APIConfig) *APITransport {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAPIBaseURL
	}
	return &APITransport{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Transport = (*APITransport)(nil)

func (t *APITransport) Name() string { return string(KindAPI) }

// Capabilities: the provider only forwards custom X- headers.
func (t *APITransport) Capabilities() Capabilities {
	return Capabilities{
		SupportsArbitraryHeaders: false,
		AllowedHeaderPrefixes:    []string{"X-"},
	}
}

// apiAttachment is the provider wire shape for an attachment.
type apiAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// apiRequest is the provider wire shape for a send.
type apiRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Cc          []string          `json:"cc,omitempty"`
	Bcc         []string          `json:"bcc,omitempty"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []apiAttachment   `json:"attachments,omitempty"`
}

// apiResponse carries the provider-assigned id.
type apiResponse struct {
	ID string `json:"id"`
}

// Send posts the message to the provider and returns its assigned id.
func (t *APITransport) Send(ctx context.Context, msg *Message) (string, error) {
	req := apiRequest{
		From:    msg.From,
		To:      msg.To,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
	}
	for _, att := range msg.Attachments {
		req.Attachments = append(req.Attachments, apiAttachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &SendError{Transport: t.Name(), Err: fmt.Errorf("encoding request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", &SendError{Transport: t.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return "", &SendError{Transport: t.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SendError{
			Transport: t.Name(),
			Err:       fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(data)),
		}
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &SendError{Transport: t.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	return out.ID, nil
}
