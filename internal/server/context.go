package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gatemail-dev/gatemail/internal/approval"
	"github.com/gatemail-dev/gatemail/internal/blob"
	"github.com/gatemail-dev/gatemail/internal/compose"
	"github.com/gatemail-dev/gatemail/internal/draft"
	"github.com/gatemail-dev/gatemail/internal/ingest"
	"github.com/gatemail-dev/gatemail/internal/instrumentation"
	"github.com/gatemail-dev/gatemail/internal/search"
	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/threading"
	"github.com/gatemail-dev/gatemail/internal/transport"
	"github.com/gatemail-dev/gatemail/internal/webhook"
)

// Config holds everything needed to assemble a ServerContext.
type Config struct {
	DBPath        string
	BlobDir       string
	DefaultFrom   string
	Transport     transport.Config
	WebhookURL    string
	WebhookSecret string
	DeliveryToken string
	Logger        *slog.Logger
}

// ServerContext owns the wired application services and their shared
// shutdown lifecycle. Tool handlers receive it and reach the domain through
// its accessors.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store      store.Store
	blobs      blob.Store
	gate       *approval.Gate
	resolver   *threading.Resolver
	searcher   *search.Engine
	composer   *compose.Composer
	drafts     *draft.Service
	pipeline   *ingest.Pipeline
	dispatcher *webhook.Dispatcher
	listener   *webhook.Listener
	logger     *slog.Logger

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext opens the store and wires every service.
func NewServerContext(ctx context.Context, cfg Config) (*ServerContext, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	gate := approval.NewGate(st, logger)
	resolver := threading.NewResolver(st)
	searcher := search.NewEngine(st, logger)
	composer := compose.NewComposer(st, blobs, cfg.Transport, cfg.DefaultFrom, logger)
	drafts := draft.NewService(st, composer, logger)
	dispatcher := webhook.NewDispatcher(cfg.WebhookURL, cfg.WebhookSecret, logger)
	pipeline := ingest.NewPipeline(st, blobs, resolver, gate, dispatcher, logger)
	listener := webhook.NewListener(st, cfg.DeliveryToken, logger)

	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		store:      st,
		blobs:      blobs,
		gate:       gate,
		resolver:   resolver,
		searcher:   searcher,
		composer:   composer,
		drafts:     drafts,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		listener:   listener,
		logger:     logger,
	}, nil
}

// Context returns the shutdown-scoped context.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// Store returns the persistence layer.
func (sc *ServerContext) Store() store.Store { return sc.store }

// Blobs returns the attachment payload store.
func (sc *ServerContext) Blobs() blob.Store { return sc.blobs }

// Gate returns the approval gate.
func (sc *ServerContext) Gate() *approval.Gate { return sc.gate }

// Resolver returns the threading resolver.
func (sc *ServerContext) Resolver() *threading.Resolver { return sc.resolver }

// Search returns the search engine.
func (sc *ServerContext) Search() *search.Engine { return sc.searcher }

// Composer returns the outbound composer.
func (sc *ServerContext) Composer() *compose.Composer { return sc.composer }

// Drafts returns the draft service.
func (sc *ServerContext) Drafts() *draft.Service { return sc.drafts }

// Pipeline returns the inbound ingestion pipeline.
func (sc *ServerContext) Pipeline() *ingest.Pipeline { return sc.pipeline }

// Dispatcher returns the outbound webhook dispatcher.
func (sc *ServerContext) Dispatcher() *webhook.Dispatcher { return sc.dispatcher }

// DeliveryListener returns the delivery-status callback handler.
func (sc *ServerContext) DeliveryListener() *webhook.Listener { return sc.listener }

// Logger returns the shared logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// SetMetrics attaches a metrics recorder. May be left unset when
// instrumentation is disabled.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) { sc.metrics = m }

// Metrics returns the metrics recorder, or nil when instrumentation is
// disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.metrics }

// SetAuditLogger attaches an audit logger for tool invocations.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) { sc.auditLogger = al }

// AuditLogger returns the audit logger, or nil when audit logging is
// disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger { return sc.auditLogger }

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the shared context and closes the store. Safe to call
// more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return sc.store.Close()
}
