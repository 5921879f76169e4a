// Package common provides shared utilities for MCP tool implementations.
// Its instrumented handler wrapper gives every mail tool the same metrics
// recording and audit logging without duplicating that plumbing per tool.
package common
