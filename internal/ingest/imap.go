package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/gatemail-dev/gatemail/internal/logging"
)

// IMAPConfig configures the inbound IMAP poller.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// StartTLS upgrades a plain connection instead of dialing TLS directly.
	StartTLS bool
	Mailbox  string
	Interval time.Duration
}

// Poller periodically fetches unseen mail from an IMAP mailbox and feeds it
// through the ingestion pipeline. Messages are fetched with peek and only
// flagged seen after the pipeline accepts them, so a failed ingestion is
// retried on the next cycle.
type Poller struct {
	cfg      IMAPConfig
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewPoller creates an IMAP poller.
func NewPoller(cfg IMAPConfig, pipeline *Pipeline, logger *slog.Logger) *Poller {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{cfg: cfg, pipeline: pipeline, logger: logger}
}

// Run polls until the context is cancelled. Individual cycle failures are
// logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			p.logger.Warn("imap poll cycle failed", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce runs a single fetch cycle and returns its error. Used for
// one-shot ingestion.
func (p *Poller) PollOnce(ctx context.Context) error {
	return p.poll(ctx)
}

func (p *Poller) connect() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	var client *imapclient.Client
	var err error
	if p.cfg.StartTLS {
		client, err = imapclient.DialStartTLS(addr, nil)
	} else {
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to imap %s: %w", addr, err)
	}

	if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("imap login for %s: %w", p.cfg.Username, err)
	}
	return client, nil
}

// poll runs one fetch cycle: search unseen, ingest each message, mark seen.
func (p *Poller) poll(ctx context.Context) error {
	client, err := p.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(p.cfg.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", p.cfg.Mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}
	p.logger.Debug("unseen messages found", slog.Int("count", len(uids)))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var ingested []imap.UID
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			p.logger.Warn("collecting imap message", logging.Err(err))
			continue
		}
		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}
		if _, err := p.pipeline.IngestRaw(ctx, raw); err != nil {
			p.logger.Warn("ingesting imap message",
				slog.Uint64("uid", uint64(buf.UID)),
				logging.Err(err),
			)
			continue
		}
		ingested = append(ingested, buf.UID)
	}
	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}

	if len(ingested) > 0 {
		storeCmd := client.Store(imap.UIDSetNum(ingested...), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return fmt.Errorf("marking messages seen: %w", err)
		}
	}

	return nil
}
