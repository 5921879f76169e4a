package mail_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatemail-dev/gatemail/internal/instrumentation"
	"github.com/gatemail-dev/gatemail/internal/server"
	"github.com/gatemail-dev/gatemail/internal/tools/common"
)

// registerSenderTools registers allowlist management tools.
func registerSenderTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// List approved senders tool (read-only, always available)
	listApprovedTool := mcp.NewTool("mail_list_approved_senders",
		mcp.WithDescription("List all approved senders"),
	)

	s.AddTool(listApprovedTool, common.InstrumentedToolHandlerWithOperation("mail_list_approved_senders", instrumentation.OperationList, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		senders, err := sc.Gate().List(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list approved senders: %v", err)), nil
		}

		result, _ := json.MarshalIndent(senders, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Register allowlist mutation tools only if not in read-only mode
	if !readOnly {
		// Approve sender tool
		approveSenderTool := mcp.NewTool("mail_approve_sender",
			mcp.WithDescription("Add a sender to the allowlist. All of their pending messages become visible retroactively."),
			mcp.WithString("email",
				mcp.Required(),
				mcp.Description("The sender's email address"),
			),
			mcp.WithString("name",
				mcp.Description("Optional display name for the sender"),
			),
		)

		s.AddTool(approveSenderTool, common.InstrumentedToolHandlerWithOperation("mail_approve_sender", instrumentation.OperationApprove, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			email := getStringArg(args, "email")
			if email == "" {
				return mcp.NewToolResultError("email is required"), nil
			}

			var name *string
			if n := getStringArg(args, "name"); n != "" {
				name = &n
			}

			res, err := sc.Gate().Approve(ctx, email, name)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to approve sender: %v", err)), nil
			}

			if m := sc.Metrics(); m != nil {
				m.RecordSenderApproval(ctx, "approve", res.RetroactiveCount)
			}

			result, _ := json.MarshalIndent(res, "", "  ")
			return mcp.NewToolResultText(fmt.Sprintf("Sender approved:\n%s", string(result))), nil
		}))

		// Remove approved sender tool
		removeSenderTool := mcp.NewTool("mail_remove_approved_sender",
			mcp.WithDescription("Remove a sender from the allowlist. Messages already approved stay visible; only future mail is affected."),
			mcp.WithString("email",
				mcp.Required(),
				mcp.Description("The sender's email address"),
			),
		)

		s.AddTool(removeSenderTool, common.InstrumentedToolHandlerWithOperation("mail_remove_approved_sender", instrumentation.OperationApprove, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			email := getStringArg(args, "email")
			if email == "" {
				return mcp.NewToolResultError("email is required"), nil
			}

			if err := sc.Gate().Remove(ctx, email); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to remove sender: %v", err)), nil
			}

			if m := sc.Metrics(); m != nil {
				m.RecordSenderApproval(ctx, "remove", 0)
			}

			return mcp.NewToolResultText(fmt.Sprintf("Sender %s removed from allowlist", email)), nil
		}))
	}

	return nil
}
