// Package mail_tools provides MCP tools for the gatemail message store.
//
// The tool surface is the only way an agent reaches mail content. Every
// read path composes the approval predicate server-side: unapproved
// messages are invisible to reads, searches, thread listings, and
// attachment fetches, and a missing id is indistinguishable from a hidden
// one. The pending projection (mail_list_pending) exposes metadata only,
// never bodies, so a reviewer can decide on a sender without ingesting
// untrusted content.
//
// Tools are grouped by concern:
//   - message_tools.go: listing, reading, pending review, search, threads,
//     archiving, labels, and attachments
//   - sender_tools.go: the sender allowlist
//   - send_tools.go: outbound send and reply
//   - draft_tools.go: the draft lifecycle
package mail_tools
