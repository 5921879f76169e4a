// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the gatemail MCP server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, ingestion, sends, and tool calls
//   - Distributed tracing for request flows and transport dispatches
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Ingestion Metrics:
//   - inbound_messages_total: Counter of inbound messages by status and approval
//   - ingest_duration_seconds: Histogram of ingestion pipeline durations
//
// Outbound Metrics:
//   - outbound_sends_total: Counter of send attempts by transport and status
//   - send_duration_seconds: Histogram of transport dispatch durations
//
// Approval Gate Metrics:
//   - sender_approvals_total: Counter of allowlist changes by action
//   - retroactive_approvals_total: Counter of messages retroactively approved
//
// Webhook Metrics:
//   - webhook_deliveries_total: Counter of outbound webhook deliveries by event and result
//   - delivery_callbacks_total: Counter of provider delivery-status callbacks
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - MCP tool invocations (tool.<name>)
//   - Transport dispatches (transport.<name>.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: gatemail)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "gatemail",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/mcp", 200, time.Since(start))
//
//	// Record an outbound send
//	recorder.RecordOutboundSend(ctx, "smtp", "success", time.Since(start))
//
//	// Record an MCP tool invocation
//	recorder.RecordToolInvocation(ctx, "mail_read_message", "success", time.Since(start))
package instrumentation
