package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatemail-dev/gatemail/internal/ingest"
	"github.com/gatemail-dev/gatemail/internal/instrumentation"
	"github.com/gatemail-dev/gatemail/internal/server"
	"github.com/gatemail-dev/gatemail/internal/tools/mail_tools"
	"github.com/gatemail-dev/gatemail/internal/transport"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions collects everything the serve command needs to run.
type serveOptions struct {
	Transport string
	HTTPAddr  string
	Debug     bool
	Yolo      bool

	Store   server.Config
	IMAP    ingest.IMAPConfig
	Ingest  IngestConfig
	Metrics MetricsConfig
}

// IngestConfig holds configuration for the inbound HTTP surface.
type IngestConfig struct {
	// Addr is the address for the ingest/delivery/health server (e.g., ":8081")
	Addr string

	// Token guards POST /ingest/inbound. Empty disables the endpoint.
	Token string
}

func newServeCmd() *cobra.Command {
	var (
		debugMode     bool
		transportType string
		httpAddr      string
		yolo          bool
		// Store and composer configuration
		dbPath      string
		blobDir     string
		defaultFrom string
		// Outbound transport configuration
		mailTransport   string
		smtpHost        string
		smtpPort        int
		smtpUsername    string
		smtpPassword    string
		smtpImplicitTLS bool
		apiURL          string
		apiKey          string
		// Webhook and callback configuration
		webhookURL    string
		webhookSecret string
		deliveryToken string
		// Inbound HTTP surface
		ingestAddr  string
		ingestToken string
		// Inbound IMAP polling
		imapHost     string
		imapPort     int
		imapUsername string
		imapPassword string
		imapStartTLS bool
		imapMailbox  string
		imapInterval time.Duration
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the trust-gated
mail store to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Safety Mode:
  By default, the server operates in read-only mode: only listing,
  reading, and searching tools are registered. Use --yolo to enable
  write operations (sending mail, drafts, allowlist changes).

Inbound Mail:
  Messages arrive either through POST /ingest/inbound on the ingest
  server (guarded by --ingest-token) or through IMAP polling when
  --imap-host is configured. Both feed the same pipeline: threading,
  the approval gate, and webhook notification.

Outbound Mail:
  Configure SMTP (--smtp-host and friends) or a provider HTTP API
  (--api-url, --api-key). With both configured SMTP wins; with neither,
  send tools fail at call time, not at startup.

Secrets may also be supplied via environment variables (SMTP_PASSWORD,
MAIL_API_KEY, WEBHOOK_SECRET, INGEST_TOKEN, DELIVERY_TOKEN,
IMAP_PASSWORD), or a .env file in the working directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is not an error
			_ = godotenv.Load()

			// Load secrets from environment variables if not set via flags
			if smtpPassword == "" {
				smtpPassword = os.Getenv("SMTP_PASSWORD")
			}
			if apiKey == "" {
				apiKey = os.Getenv("MAIL_API_KEY")
			}
			if webhookSecret == "" {
				webhookSecret = os.Getenv("WEBHOOK_SECRET")
			}
			if ingestToken == "" {
				ingestToken = os.Getenv("INGEST_TOKEN")
			}
			if deliveryToken == "" {
				deliveryToken = os.Getenv("DELIVERY_TOKEN")
			}
			if imapPassword == "" {
				imapPassword = os.Getenv("IMAP_PASSWORD")
			}

			// Non-secret env fallbacks for container deployments
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
			if defaultFrom == "" {
				defaultFrom = os.Getenv("MAIL_DEFAULT_FROM")
			}
			if webhookURL == "" {
				webhookURL = os.Getenv("WEBHOOK_URL")
			}

			// Load metrics config from environment variables if not set via flags
			if !cmd.Flags().Changed("metrics-enabled") {
				if v := os.Getenv("METRICS_ENABLED"); v != "" {
					if parsed, err := strconv.ParseBool(v); err == nil {
						metricsEnabled = parsed
					} else {
						log.Printf("Warning: invalid METRICS_ENABLED value %q (expected true/false), using default: %v", v, metricsEnabled)
					}
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					metricsAddr = addr
				}
			}

			opts := serveOptions{
				Transport: transportType,
				HTTPAddr:  httpAddr,
				Debug:     debugMode,
				Yolo:      yolo,
				Store: server.Config{
					DBPath:      dbPath,
					BlobDir:     blobDir,
					DefaultFrom: defaultFrom,
					Transport: transport.Config{
						Provider: mailTransport,
						SMTP: transport.SMTPConfig{
							Host:        smtpHost,
							Port:        smtpPort,
							Username:    smtpUsername,
							Password:    smtpPassword,
							ImplicitTLS: smtpImplicitTLS,
						},
						API: transport.APIConfig{
							BaseURL: apiURL,
							APIKey:  apiKey,
						},
					},
					WebhookURL:    webhookURL,
					WebhookSecret: webhookSecret,
					DeliveryToken: deliveryToken,
				},
				IMAP: ingest.IMAPConfig{
					Host:     imapHost,
					Port:     imapPort,
					Username: imapUsername,
					Password: imapPassword,
					StartTLS: imapStartTLS,
					Mailbox:  imapMailbox,
					Interval: imapInterval,
				},
				Ingest: IngestConfig{
					Addr:  ingestAddr,
					Token: ingestToken,
				},
				Metrics: MetricsConfig{
					Enabled: metricsEnabled,
					Addr:    metricsAddr,
				},
			}

			return runServe(opts)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transportType, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (sending mail, drafts, allowlist changes). Default is read-only mode.")

	cmd.Flags().StringVar(&dbPath, "db-path", "gatemail.db", "Path to the SQLite database file. Can also use GATEMAIL_DB_PATH env var.")
	cmd.Flags().StringVar(&blobDir, "blob-dir", "blobs", "Directory for attachment payloads. Can also use GATEMAIL_BLOB_DIR env var.")
	cmd.Flags().StringVar(&defaultFrom, "default-from", "", "From address for outbound mail. Can also use MAIL_DEFAULT_FROM env var.")

	cmd.Flags().StringVar(&mailTransport, "mail-transport", "", "Outbound transport: smtp or api. Empty auto-detects from the configured credentials.")
	cmd.Flags().StringVar(&smtpHost, "smtp-host", "", "SMTP submission host")
	cmd.Flags().IntVar(&smtpPort, "smtp-port", 587, "SMTP submission port")
	cmd.Flags().StringVar(&smtpUsername, "smtp-username", "", "SMTP username")
	cmd.Flags().StringVar(&smtpPassword, "smtp-password", "", "SMTP password. Prefer the SMTP_PASSWORD env var.")
	cmd.Flags().BoolVar(&smtpImplicitTLS, "smtp-implicit-tls", false, "Dial TLS directly (port 465 convention) instead of STARTTLS")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Base URL of the provider HTTP API transport")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the provider HTTP API transport. Prefer the MAIL_API_KEY env var.")

	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "URL notified on message events (received, sent, sender_approved). Empty disables webhooks. Can also use WEBHOOK_URL env var.")
	cmd.Flags().StringVar(&webhookSecret, "webhook-secret", "", "HMAC secret for signing webhook payloads. Prefer the WEBHOOK_SECRET env var.")
	cmd.Flags().StringVar(&deliveryToken, "delivery-token", "", "Bearer token guarding the delivery-status callback endpoint. Prefer the DELIVERY_TOKEN env var.")

	cmd.Flags().StringVar(&ingestAddr, "ingest-addr", ":8081", "Address for the ingest/delivery/health HTTP server")
	cmd.Flags().StringVar(&ingestToken, "ingest-token", "", "Bearer token guarding POST /ingest/inbound. Empty disables the endpoint. Prefer the INGEST_TOKEN env var.")

	cmd.Flags().StringVar(&imapHost, "imap-host", "", "IMAP host for inbound polling. Empty disables IMAP.")
	cmd.Flags().IntVar(&imapPort, "imap-port", 993, "IMAP port")
	cmd.Flags().StringVar(&imapUsername, "imap-username", "", "IMAP username")
	cmd.Flags().StringVar(&imapPassword, "imap-password", "", "IMAP password. Prefer the IMAP_PASSWORD env var.")
	cmd.Flags().BoolVar(&imapStartTLS, "imap-starttls", false, "Upgrade a plain IMAP connection with STARTTLS instead of dialing TLS directly")
	cmd.Flags().StringVar(&imapMailbox, "imap-mailbox", "INBOX", "IMAP mailbox to poll")
	cmd.Flags().DurationVar(&imapInterval, "imap-interval", time.Minute, "IMAP polling interval")

	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(opts serveOptions) error {
	// Set up signal handling for graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logs go to stderr so the stdio transport keeps stdout clean
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	opts.Store.Logger = logger

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.Printf("Error during instrumentation shutdown: %v", err)
		}
	}()

	// Start the metrics server on its own port for non-stdio transports
	var metricsServer *server.MetricsServer
	if opts.Transport != "stdio" && opts.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
		}()

		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server failed to start within 5 seconds")
		}
	}

	// Create server context
	serverContext, err := server.NewServerContext(shutdownCtx, opts.Store)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}

	// Set metrics and audit logger on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}
	defer func() {
		// Shutdown metrics server first
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			if opts.Transport != "stdio" {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	// Start the ingest/delivery/health HTTP server. It runs for every MCP
	// transport: a stdio agent still receives inbound mail over HTTP.
	health := server.NewHealthChecker(serverContext)
	appServer := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:        opts.Ingest.Addr,
		IngestToken: opts.Ingest.Token,
	}, serverContext, health)

	appErr := make(chan error, 1)
	go func() {
		if err := appServer.Start(); err != nil && err != http.ErrServerClosed {
			appErr <- err
		}
	}()
	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := appServer.Shutdown(ctx); err != nil {
			log.Printf("Error during http server shutdown: %v", err)
		}
	}()

	// Start the IMAP poller when a host is configured
	if opts.IMAP.Host != "" {
		poller := ingest.NewPoller(opts.IMAP, serverContext.Pipeline(), logger)
		go func() {
			if err := poller.Run(shutdownCtx); err != nil && shutdownCtx.Err() == nil {
				log.Printf("IMAP poller stopped: %v", err)
			}
		}()
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("gatemail", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	// readOnly is the inverse of yolo
	readOnly := !opts.Yolo

	// Log the mode for visibility (only for non-stdio transports)
	if opts.Transport != "stdio" {
		if readOnly {
			log.Println("Starting server in READ-ONLY mode (use --yolo to enable write operations)")
		} else {
			log.Println("Starting server with WRITE operations enabled (--yolo flag is set)")
		}
	}

	if err := mail_tools.RegisterMailTools(mcpSrv, serverContext, readOnly); err != nil {
		return fmt.Errorf("failed to register mail tools: %w", err)
	}

	// Start the appropriate server based on transport type
	switch opts.Transport {
	case "stdio":
		select {
		case err := <-appErr:
			return fmt.Errorf("http server failed to start: %w", err)
		default:
		}
		return runStdioServer(mcpSrv)
	case "streamable-http":
		fmt.Printf("Starting gatemail MCP server with %s transport...\n", opts.Transport)
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, opts.HTTPAddr)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.Transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, addr string) error {
	httpServer := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during http server shutdown: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}
