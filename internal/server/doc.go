// Package server wires the application services and exposes their
// operational surfaces.
//
// # Key Components
//
// ServerContext assembles the message store, blob store, approval gate,
// threading resolver, search engine, composer, draft service, ingestion
// pipeline, and webhook dispatcher behind a single shutdown lifecycle.
// Tool handlers receive it and reach the domain through its accessors.
//
// HTTPServer serves the inbound ingestion endpoint (POST /ingest/inbound,
// bearer-token guarded), the provider delivery-status callback endpoint
// (POST /webhooks/delivery, shared-token guarded), and the Kubernetes
// health probes.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolated
// from mail traffic.
package server
