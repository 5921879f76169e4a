package cmd

import (
	"testing"
	"time"
)

func TestNewServeCmdFlagDefaults(t *testing.T) {
	cmd := newServeCmd()

	defaults := map[string]string{
		"transport":       "stdio",
		"http-addr":       ":8080",
		"yolo":            "false",
		"db-path":         "gatemail.db",
		"blob-dir":        "blobs",
		"mail-transport":  "",
		"smtp-port":       "587",
		"imap-port":       "993",
		"imap-mailbox":    "INBOX",
		"ingest-addr":     ":8081",
		"metrics-enabled": "true",
		"metrics-addr":    ":9090",
	}

	for name, want := range defaults {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Errorf("flag %q not registered", name)
			continue
		}
		if flag.DefValue != want {
			t.Errorf("flag %q default = %q, want %q", name, flag.DefValue, want)
		}
	}
}

func TestNewServeCmdIMAPInterval(t *testing.T) {
	cmd := newServeCmd()

	flag := cmd.Flags().Lookup("imap-interval")
	if flag == nil {
		t.Fatal("flag imap-interval not registered")
	}
	if flag.DefValue != time.Minute.String() {
		t.Errorf("imap-interval default = %q, want %q", flag.DefValue, time.Minute.String())
	}
}

func TestNewServeCmdSecretsNotRequired(t *testing.T) {
	cmd := newServeCmd()

	// Secrets are optional flags; startup must not demand them.
	for _, name := range []string{"smtp-password", "api-key", "webhook-secret", "ingest-token", "delivery-token", "imap-password"} {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Errorf("flag %q not registered", name)
			continue
		}
		if flag.DefValue != "" {
			t.Errorf("flag %q default = %q, want empty", name, flag.DefValue)
		}
	}
}
