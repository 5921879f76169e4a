package transport

import "fmt"

// Kind identifies a configured transport implementation.
type Kind string

const (
	KindSMTP Kind = "smtp"
	KindAPI  Kind = "api"
)

// SMTPConfig configures the direct SMTP submission transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// ImplicitTLS dials TLS directly (port 465 convention) instead of
	// STARTTLS.
	ImplicitTLS bool
}

// APIConfig configures the HTTP provider API transport.
type APIConfig struct {
	BaseURL string
	APIKey  string
}

// Config holds the outbound transport configuration.
type Config struct {
	// Provider forces a specific transport ("smtp" or "api"). Empty means
	// auto-detect.
	Provider string
	SMTP     SMTPConfig
	API      APIConfig
}

// Select is the pure transport-selection function, invoked once per composer
// call. The SMTP binding wins when present, the API key transport is second,
// and with neither the call fails with ErrNoTransport.
func Select(cfg Config) (Kind, error) {
	switch cfg.Provider {
	case string(KindSMTP):
		if cfg.SMTP.Host == "" {
			return "", fmt.Errorf("smtp transport requested but no host configured: %w", ErrNoTransport)
		}
		return KindSMTP, nil
	case string(KindAPI):
		if cfg.API.APIKey == "" {
			return "", fmt.Errorf("api transport requested but no api key configured: %w", ErrNoTransport)
		}
		return KindAPI, nil
	case "":
		// auto-detect below
	default:
		return "", fmt.Errorf("unknown transport provider %q: %w", cfg.Provider, ErrNoTransport)
	}

	if cfg.SMTP.Host != "" {
		return KindSMTP, nil
	}
	if cfg.API.APIKey != "" {
		return KindAPI, nil
	}
	return "", ErrNoTransport
}

// New constructs the transport selected by Select.
func New(cfg Config) (Transport, error) {
	kind, err := Select(cfg)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSMTP:
		return NewSMTPTransport(cfg.SMTP), nil
	case KindAPI:
		return NewAPITransport(cfg.API), nil
	}
	return nil, ErrNoTransport
}
