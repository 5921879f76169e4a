package mail_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatemail-dev/gatemail/internal/compose"
	"github.com/gatemail-dev/gatemail/internal/instrumentation"
	"github.com/gatemail-dev/gatemail/internal/server"
	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/tools/common"
)

// parseAttachments parses the attachments argument, which may arrive as a
// JSON array of objects or as a JSON-encoded string.
func parseAttachments(raw interface{}) ([]compose.AttachmentInput, error) {
	if raw == nil {
		return nil, nil
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid attachments: %w", err)
		}
	}

	var atts []compose.AttachmentInput
	if err := json.Unmarshal(data, &atts); err != nil {
		return nil, fmt.Errorf("invalid attachments: %w", err)
	}
	return atts, nil
}

// parseHeaders parses the headers argument, an object of header name to value.
func parseHeaders(raw interface{}) (map[string]string, error) {
	if raw == nil {
		return nil, nil
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("headers must be an object of header name to value")
	}

	headers := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("header %q must be a string", k)
		}
		headers[k] = s
	}
	return headers, nil
}

// registerSendTools registers the outbound send and reply tools.
func registerSendTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Send tool
	sendTool := mcp.NewTool("mail_send",
		mcp.WithDescription("Send an email through the configured transport. The sent message is recorded in the store; with threadId it joins that thread and carries its reply headers."),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient addresses, comma-separated"),
		),
		mcp.WithString("cc",
			mcp.Description("Cc addresses, comma-separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("Bcc addresses, comma-separated"),
		),
		mcp.WithString("subject",
			mcp.Description("The message subject"),
		),
		mcp.WithString("body",
			mcp.Description("The plain-text message body"),
		),
		mcp.WithString("threadId",
			mcp.Description("Existing thread to append the sent message to"),
		),
		mcp.WithObject("headers",
			mcp.Description("Extra headers as an object of name to value. Headers the transport does not support are omitted from the wire."),
		),
		mcp.WithString("attachments",
			mcp.Description(`Attachments as a JSON array. Each entry carries "filename", "content_type", and either "content" (base64 payload) or "content_id" (id of a stored attachment to re-send).`),
		),
	)

	s.AddTool(sendTool, common.InstrumentedToolHandlerWithOperation("mail_send", instrumentation.OperationSend, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		to := parseAddressList(getStringArg(args, "to"))
		if len(to) == 0 {
			return mcp.NewToolResultError("to is required"), nil
		}

		headers, err := parseHeaders(args["headers"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		atts, err := parseAttachments(args["attachments"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := sc.Composer().Send(ctx, compose.SendParams{
			To:          to,
			Cc:          parseAddressList(getStringArg(args, "cc")),
			Bcc:         parseAddressList(getStringArg(args, "bcc")),
			Subject:     getStringArg(args, "subject"),
			Body:        getStringArg(args, "body"),
			ThreadID:    getStringArg(args, "threadId"),
			Headers:     headers,
			Attachments: atts,
		})
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError("Thread or referenced attachment not found"), nil
		}
		if errors.Is(err, compose.ErrValidation) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to send message: %v", err)), nil
		}

		result, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(fmt.Sprintf("Message sent:\n%s", string(result))), nil
	}))

	// Reply tool
	replyTool := mcp.NewTool("mail_reply",
		mcp.WithDescription("Reply to a message. The reply goes to the original sender, joins the original's thread, and carries the threading headers derived from it."),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to reply to"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("The plain-text reply body"),
		),
		mcp.WithString("attachments",
			mcp.Description(`Attachments as a JSON array, same shape as mail_send`),
		),
	)

	s.AddTool(replyTool, common.InstrumentedToolHandlerWithOperation("mail_reply", instrumentation.OperationSend, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		messageID := getStringArg(args, "messageId")
		if messageID == "" {
			return mcp.NewToolResultError("messageId is required"), nil
		}

		body := getStringArg(args, "body")
		if body == "" {
			return mcp.NewToolResultError("body is required"), nil
		}

		atts, err := parseAttachments(args["attachments"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := sc.Composer().Reply(ctx, messageID, body, atts)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Message %s not found", messageID)), nil
		}
		if errors.Is(err, compose.ErrValidation) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to send reply: %v", err)), nil
		}

		result, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(fmt.Sprintf("Reply sent:\n%s", string(result))), nil
	}))

	return nil
}
