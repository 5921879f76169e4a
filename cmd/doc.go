// Package cmd implements the command-line interface for gatemail.
//
// This package provides the following commands:
//   - serve: Start the MCP server, the ingest HTTP surface, and the
//     optional IMAP poller
//   - ingest: One-shot ingestion of raw messages from files, stdin, or
//     a single IMAP fetch cycle
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
