package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gatemail-dev/gatemail/internal/ingest"
	"github.com/gatemail-dev/gatemail/internal/server"
)

func newIngestCmd() *cobra.Command {
	var (
		dbPath        string
		blobDir       string
		webhookURL    string
		webhookSecret string
		// One-shot IMAP fetch
		imapOnce     bool
		imapHost     string
		imapPort     int
		imapUsername string
		imapPassword string
		imapStartTLS bool
		imapMailbox  string
	)

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest raw email messages into the store",
		Long: `Ingest raw RFC 822 messages into the store without starting the MCP
server. Each file argument is parsed and fed through the full pipeline:
threading, the approval gate, attachment storage, and webhook
notification. With no arguments, a single message is read from stdin.

With --imap, a single IMAP fetch cycle runs instead: unseen messages in
the configured mailbox are ingested and flagged seen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is not an error
			_ = godotenv.Load()

			if webhookSecret == "" {
				webhookSecret = os.Getenv("WEBHOOK_SECRET")
			}
			if webhookURL == "" {
				webhookURL = os.Getenv("WEBHOOK_URL")
			}
			if imapPassword == "" {
				imapPassword = os.Getenv("IMAP_PASSWORD")
			}
			if !cmd.Flags().Changed("db-path") {
				if v := os.Getenv("GATEMAIL_DB_PATH"); v != "" {
					dbPath = v
				}
			}
			if !cmd.Flags().Changed("blob-dir") {
				if v := os.Getenv("GATEMAIL_BLOB_DIR"); v != "" {
					blobDir = v
				}
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			sc, err := server.NewServerContext(ctx, server.Config{
				DBPath:        dbPath,
				BlobDir:       blobDir,
				WebhookURL:    webhookURL,
				WebhookSecret: webhookSecret,
				Logger:        logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create server context: %w", err)
			}
			defer func() { _ = sc.Shutdown() }()

			if imapOnce {
				if imapHost == "" {
					return fmt.Errorf("--imap requires --imap-host")
				}
				poller := ingest.NewPoller(ingest.IMAPConfig{
					Host:     imapHost,
					Port:     imapPort,
					Username: imapUsername,
					Password: imapPassword,
					StartTLS: imapStartTLS,
					Mailbox:  imapMailbox,
				}, sc.Pipeline(), logger)
				return poller.PollOnce(ctx)
			}

			if len(args) == 0 {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				return ingestOne(ctx, sc, "stdin", raw)
			}

			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if err := ingestOne(ctx, sc, path, raw); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db-path", "gatemail.db", "Path to the SQLite database file. Can also use GATEMAIL_DB_PATH env var.")
	cmd.Flags().StringVar(&blobDir, "blob-dir", "blobs", "Directory for attachment payloads. Can also use GATEMAIL_BLOB_DIR env var.")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "URL notified on message events. Empty disables webhooks. Can also use WEBHOOK_URL env var.")
	cmd.Flags().StringVar(&webhookSecret, "webhook-secret", "", "HMAC secret for signing webhook payloads. Prefer the WEBHOOK_SECRET env var.")

	cmd.Flags().BoolVar(&imapOnce, "imap", false, "Run a single IMAP fetch cycle instead of reading files")
	cmd.Flags().StringVar(&imapHost, "imap-host", "", "IMAP host")
	cmd.Flags().IntVar(&imapPort, "imap-port", 993, "IMAP port")
	cmd.Flags().StringVar(&imapUsername, "imap-username", "", "IMAP username")
	cmd.Flags().StringVar(&imapPassword, "imap-password", "", "IMAP password. Prefer the IMAP_PASSWORD env var.")
	cmd.Flags().BoolVar(&imapStartTLS, "imap-starttls", false, "Upgrade a plain IMAP connection with STARTTLS instead of dialing TLS directly")
	cmd.Flags().StringVar(&imapMailbox, "imap-mailbox", "INBOX", "IMAP mailbox to fetch from")

	return cmd
}

func ingestOne(ctx context.Context, sc *server.ServerContext, source string, raw []byte) error {
	msg, err := sc.Pipeline().IngestRaw(ctx, raw)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", source, err)
	}

	status := "pending"
	if msg.Approved {
		status = "approved"
	}
	fmt.Printf("%s: message %s (thread %s, %s)\n", source, msg.ID, msg.ThreadID, status)
	return nil
}
