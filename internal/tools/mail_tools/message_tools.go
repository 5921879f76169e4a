package mail_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/gatemail-dev/gatemail/internal/instrumentation"
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/server"
	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/tools/common"
)

const defaultListLimit = 50

// messageView is the full tool-facing rendering of a visible message,
// including its labels and attachment metadata.
type messageView struct {
	model.Message
	Labels      []string           `json:"labels,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

// registerMessageTools registers message reading, search, thread, archive,
// label, and attachment tools.
func registerMessageTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// List messages tool
	listMessagesTool := mcp.NewTool("mail_list_messages",
		mcp.WithDescription("List visible messages, newest first, with optional filters"),
		mcp.WithString("threadId",
			mcp.Description("Only return messages in this thread"),
		),
		mcp.WithString("label",
			mcp.Description("Only return messages carrying this label"),
		),
		mcp.WithBoolean("includeArchived",
			mcp.Description("Include archived messages (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default: 50)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of messages to skip for pagination"),
		),
	)

	s.AddTool(listMessagesTool, common.InstrumentedToolHandlerWithOperation("mail_list_messages", instrumentation.OperationList, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		filter := store.MessageFilter{
			ThreadID:        getStringArg(args, "threadId"),
			Label:           getStringArg(args, "label"),
			IncludeArchived: getBoolArg(args, "includeArchived", false),
			Limit:           getIntArg(args, "limit", defaultListLimit),
			Offset:          getIntArg(args, "offset", 0),
		}

		msgs, err := sc.Store().ListMessages(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list messages: %v", err)), nil
		}

		result, _ := json.MarshalIndent(msgs, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Read message tool
	readMessageTool := mcp.NewTool("mail_read_message",
		mcp.WithDescription("Read a single message including its labels and attachment metadata"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to read"),
		),
	)

	s.AddTool(readMessageTool, common.InstrumentedToolHandlerWithOperation("mail_read_message", instrumentation.OperationGet, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		messageID := getStringArg(args, "messageId")
		if messageID == "" {
			return mcp.NewToolResultError("messageId is required"), nil
		}

		msg, err := sc.Store().GetVisibleMessage(ctx, messageID)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Message %s not found", messageID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read message: %v", err)), nil
		}

		labels, err := sc.Store().ListLabels(ctx, messageID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read message labels: %v", err)), nil
		}

		atts, err := sc.Store().ListAttachments(ctx, messageID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read message attachments: %v", err)), nil
		}

		view := messageView{Message: *msg, Labels: labels, Attachments: atts}
		result, _ := json.MarshalIndent(view, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// List pending tool
	listPendingTool := mcp.NewTool("mail_list_pending",
		mcp.WithDescription("List messages from unapproved senders. Returns sender, subject, and timestamps only, never message content."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of pending messages to return (default: 50)"),
		),
	)

	s.AddTool(listPendingTool, common.InstrumentedToolHandlerWithOperation("mail_list_pending", instrumentation.OperationList, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		pending, err := sc.Store().ListPending(ctx, getIntArg(args, "limit", defaultListLimit))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list pending messages: %v", err)), nil
		}

		result, _ := json.MarshalIndent(pending, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Search tool
	searchTool := mcp.NewTool("mail_search",
		mcp.WithDescription("Full-text search over visible messages. Plain terms and quoted phrases use the index; anything else falls back to a literal substring match."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithBoolean("includeArchived",
			mcp.Description("Include archived messages (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 50)"),
		),
	)

	s.AddTool(searchTool, common.InstrumentedToolHandlerWithOperation("mail_search", instrumentation.OperationSearch, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		query := getStringArg(args, "query")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		msgs, err := sc.Search().Search(ctx, query,
			getIntArg(args, "limit", defaultListLimit),
			getBoolArg(args, "includeArchived", false),
		)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
		}

		result, _ := json.MarshalIndent(msgs, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// List threads tool
	listThreadsTool := mcp.NewTool("mail_list_threads",
		mcp.WithDescription("List conversation threads, most recently active first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of threads to return (default: 50)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of threads to skip for pagination"),
		),
	)

	s.AddTool(listThreadsTool, common.InstrumentedToolHandlerWithOperation("mail_list_threads", instrumentation.OperationList, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		threads, err := sc.Store().ListThreads(ctx,
			getIntArg(args, "limit", defaultListLimit),
			getIntArg(args, "offset", 0),
		)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list threads: %v", err)), nil
		}

		result, _ := json.MarshalIndent(threads, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Get thread tool
	getThreadTool := mcp.NewTool("mail_get_thread",
		mcp.WithDescription("Get a thread with its visible messages, oldest first"),
		mcp.WithString("threadId",
			mcp.Required(),
			mcp.Description("The ID of the thread to retrieve"),
		),
	)

	s.AddTool(getThreadTool, common.InstrumentedToolHandlerWithOperation("mail_get_thread", instrumentation.OperationGet, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		threadID := getStringArg(args, "threadId")
		if threadID == "" {
			return mcp.NewToolResultError("threadId is required"), nil
		}

		thread, err := sc.Store().GetThread(ctx, threadID)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Thread %s not found", threadID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get thread: %v", err)), nil
		}

		msgs, err := sc.Store().ThreadMessages(ctx, threadID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get thread messages: %v", err)), nil
		}

		view := struct {
			Thread   *model.Thread   `json:"thread"`
			Messages []model.Message `json:"messages"`
		}{Thread: thread, Messages: msgs}

		result, _ := json.MarshalIndent(view, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Get attachment tool
	getAttachmentTool := mcp.NewTool("mail_get_attachment",
		mcp.WithDescription("Fetch an attachment's metadata and base64-encoded content"),
		mcp.WithString("attachmentId",
			mcp.Required(),
			mcp.Description("The ID of the attachment to fetch"),
		),
	)

	s.AddTool(getAttachmentTool, common.InstrumentedToolHandlerWithOperation("mail_get_attachment", instrumentation.OperationGet, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		attachmentID := getStringArg(args, "attachmentId")
		if attachmentID == "" {
			return mcp.NewToolResultError("attachmentId is required"), nil
		}

		att, err := sc.Store().GetAttachment(ctx, attachmentID)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Attachment %s not found", attachmentID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get attachment: %v", err)), nil
		}

		data, err := sc.Blobs().Get(ctx, att.StorageKey)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read attachment payload: %v", err)), nil
		}

		view := struct {
			model.Attachment
			Content string `json:"content"`
		}{Attachment: *att, Content: base64.StdEncoding.EncodeToString(data)}

		result, _ := json.MarshalIndent(view, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Register archive/label tools only if not in read-only mode
	if !readOnly {
		// Archive message tool
		archiveMessageTool := mcp.NewTool("mail_archive_message",
			mcp.WithDescription("Archive or unarchive a message"),
			mcp.WithString("messageId",
				mcp.Required(),
				mcp.Description("The ID of the message to archive"),
			),
			mcp.WithBoolean("archived",
				mcp.Description("Target archived state (default: true)"),
			),
		)

		s.AddTool(archiveMessageTool, common.InstrumentedToolHandlerWithOperation("mail_archive_message", instrumentation.OperationUpdate, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			messageID := getStringArg(args, "messageId")
			if messageID == "" {
				return mcp.NewToolResultError("messageId is required"), nil
			}

			archived := getBoolArg(args, "archived", true)

			err := sc.Store().SetArchived(ctx, messageID, archived)
			if errors.Is(err, store.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("Message %s not found", messageID)), nil
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to archive message: %v", err)), nil
			}

			if archived {
				return mcp.NewToolResultText(fmt.Sprintf("Message %s archived", messageID)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Message %s unarchived", messageID)), nil
		}))

		// Label message tool
		labelMessageTool := mcp.NewTool("mail_label_message",
			mcp.WithDescription("Add or remove a label on a message"),
			mcp.WithString("messageId",
				mcp.Required(),
				mcp.Description("The ID of the message to label"),
			),
			mcp.WithString("label",
				mcp.Required(),
				mcp.Description("The label to add or remove"),
			),
			mcp.WithString("action",
				mcp.Description("Either 'add' or 'remove' (default: 'add')"),
			),
		)

		s.AddTool(labelMessageTool, common.InstrumentedToolHandlerWithOperation("mail_label_message", instrumentation.OperationUpdate, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			messageID := getStringArg(args, "messageId")
			if messageID == "" {
				return mcp.NewToolResultError("messageId is required"), nil
			}

			label := getStringArg(args, "label")
			if label == "" {
				return mcp.NewToolResultError("label is required"), nil
			}

			action := getStringArg(args, "action")
			if action == "" {
				action = "add"
			}
			if action != "add" && action != "remove" {
				return mcp.NewToolResultError("action must be 'add' or 'remove'"), nil
			}

			// Labels attach only to visible messages.
			if _, err := sc.Store().GetVisibleMessage(ctx, messageID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return mcp.NewToolResultError(fmt.Sprintf("Message %s not found", messageID)), nil
				}
				return mcp.NewToolResultError(fmt.Sprintf("Failed to label message: %v", err)), nil
			}

			var err error
			if action == "add" {
				err = sc.Store().AddLabel(ctx, messageID, label)
			} else {
				err = sc.Store().RemoveLabel(ctx, messageID, label)
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to %s label: %v", action, err)), nil
			}

			if action == "add" {
				return mcp.NewToolResultText(fmt.Sprintf("Label %q added to message %s", label, messageID)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Label %q removed from message %s", label, messageID)), nil
		}))
	}

	return nil
}
