package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrEvent     = "event"
	attrTransport = "transport"
	attrApproved  = "approved"
	attrResult    = "result"
	attrTool      = "tool"
	attrDomain    = "sender_domain"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Ingestion metrics
	inboundMessagesTotal metric.Int64Counter
	ingestDuration       metric.Float64Histogram

	// Outbound metrics
	outboundSendsTotal metric.Int64Counter
	sendDuration       metric.Float64Histogram

	// Approval gate metrics
	senderApprovalsTotal      metric.Int64Counter
	retroactiveApprovalsTotal metric.Int64Counter

	// Webhook metrics
	webhookDeliveriesTotal metric.Int64Counter
	deliveryCallbacksTotal metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Ingestion Metrics
	m.inboundMessagesTotal, err = meter.Int64Counter(
		"inbound_messages_total",
		metric.WithDescription("Total number of inbound messages processed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbound_messages_total counter: %w", err)
	}

	m.ingestDuration, err = meter.Float64Histogram(
		"ingest_duration_seconds",
		metric.WithDescription("Inbound ingestion duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest_duration_seconds histogram: %w", err)
	}

	// Outbound Metrics
	m.outboundSendsTotal, err = meter.Int64Counter(
		"outbound_sends_total",
		metric.WithDescription("Total number of outbound send attempts"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound_sends_total counter: %w", err)
	}

	m.sendDuration, err = meter.Float64Histogram(
		"send_duration_seconds",
		metric.WithDescription("Outbound send duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create send_duration_seconds histogram: %w", err)
	}

	// Approval Gate Metrics
	m.senderApprovalsTotal, err = meter.Int64Counter(
		"sender_approvals_total",
		metric.WithDescription("Total number of allowlist changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender_approvals_total counter: %w", err)
	}

	m.retroactiveApprovalsTotal, err = meter.Int64Counter(
		"retroactive_approvals_total",
		metric.WithDescription("Total number of messages retroactively approved"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retroactive_approvals_total counter: %w", err)
	}

	// Webhook Metrics
	m.webhookDeliveriesTotal, err = meter.Int64Counter(
		"webhook_deliveries_total",
		metric.WithDescription("Total number of outbound webhook delivery attempts"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook_deliveries_total counter: %w", err)
	}

	m.deliveryCallbacksTotal, err = meter.Int64Counter(
		"delivery_callbacks_total",
		metric.WithDescription("Total number of provider delivery-status callbacks"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery_callbacks_total counter: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordInboundMessage records one inbound ingestion attempt.
//
// Parameters:
//   - status: Result status ("success" or "error")
//   - approved: Whether the message was born approved
//   - senderEmail: Sender address; only its domain is recorded, and only
//     when detailedLabels is enabled
//   - duration: Time taken for the full pipeline
func (m *Metrics) RecordInboundMessage(ctx context.Context, status string, approved bool, senderEmail string, duration time.Duration) {
	if m.inboundMessagesTotal == nil || m.ingestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
		attribute.Bool(attrApproved, approved),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && senderEmail != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(senderEmail)))
	}

	m.inboundMessagesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ingestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOutboundSend records one outbound send attempt.
//
// Parameters:
//   - transport: Transport name ("smtp" or "api")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the dispatch
func (m *Metrics) RecordOutboundSend(ctx context.Context, transport, status string, duration time.Duration) {
	if m.outboundSendsTotal == nil || m.sendDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTransport, transport),
		attribute.String(attrStatus, status),
	}

	m.outboundSendsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSenderApproval records an allowlist change and the number of messages
// retroactively approved by it. Action is "approve" or "remove".
func (m *Metrics) RecordSenderApproval(ctx context.Context, action string, retroactiveCount int64) {
	if m.senderApprovalsTotal == nil || m.retroactiveApprovalsTotal == nil {
		return // Instrumentation not initialized
	}

	m.senderApprovalsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
	))
	if retroactiveCount > 0 {
		m.retroactiveApprovalsTotal.Add(ctx, retroactiveCount)
	}
}

// RecordWebhookDelivery records one outbound webhook delivery attempt.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, event, result string) {
	if m.webhookDeliveriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.webhookDeliveriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrEvent, event),
		attribute.String(attrResult, result),
	))
}

// RecordDeliveryCallback records one provider delivery-status callback and
// whether it advanced a message's status.
func (m *Metrics) RecordDeliveryCallback(ctx context.Context, event string, advanced bool) {
	if m.deliveryCallbacksTotal == nil {
		return // Instrumentation not initialized
	}

	m.deliveryCallbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrEvent, event),
		attribute.Bool("advanced", advanced),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "mail_read_message", "mail_send")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
