package mail_tools

import (
	"fmt"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatemail-dev/gatemail/internal/server"
)

// RegisterMailTools registers all mail-related tools with the MCP server.
// Read tools are always available; mutating tools (sending, drafts,
// allowlist changes, archiving, labels) are skipped in read-only mode.
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := registerMessageTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register message tools: %w", err)
	}

	if err := registerSenderTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register sender tools: %w", err)
	}

	if !readOnly {
		if err := registerSendTools(s, sc); err != nil {
			return fmt.Errorf("failed to register send tools: %w", err)
		}

		if err := registerDraftTools(s, sc); err != nil {
			return fmt.Errorf("failed to register draft tools: %w", err)
		}
	}

	return nil
}

// getStringArg extracts a string argument, returning "" when absent.
func getStringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// getBoolArg extracts a boolean argument with a default.
func getBoolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// getIntArg extracts a numeric argument with a default. JSON numbers arrive
// as float64.
func getIntArg(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

// parseAddressList parses a comma-separated list of email addresses.
func parseAddressList(s string) []string {
	if s == "" {
		return nil
	}

	var addrs []string
	for _, addr := range strings.Split(s, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
