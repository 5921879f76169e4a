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
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/server"
	"github.com/gatemail-dev/gatemail/internal/store"
	"github.com/gatemail-dev/gatemail/internal/tools/common"
)

// optionalStringArg returns a pointer to the argument's value when the key
// is present, nil when absent. Presence with an empty string clears the
// field on update.
func optionalStringArg(args map[string]interface{}, key string) *string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// registerDraftTools registers the draft lifecycle tools.
func registerDraftTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Create draft tool
	createDraftTool := mcp.NewTool("mail_create_draft",
		mcp.WithDescription("Create a draft message. Every field is optional; a draft may start empty."),
		mcp.WithString("to",
			mcp.Description("Recipient addresses, comma-separated"),
		),
		mcp.WithString("cc",
			mcp.Description("Cc addresses, comma-separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("Bcc addresses, comma-separated"),
		),
		mcp.WithString("subject",
			mcp.Description("The draft subject"),
		),
		mcp.WithString("body",
			mcp.Description("The plain-text draft body"),
		),
		mcp.WithString("threadId",
			mcp.Description("Thread the draft will join when sent"),
		),
	)

	s.AddTool(createDraftTool, common.InstrumentedToolHandlerWithOperation("mail_create_draft", instrumentation.OperationCreate, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		d := &model.Draft{
			To:       optionalStringArg(args, "to"),
			Cc:       optionalStringArg(args, "cc"),
			Bcc:      optionalStringArg(args, "bcc"),
			Subject:  optionalStringArg(args, "subject"),
			BodyText: optionalStringArg(args, "body"),
			ThreadID: optionalStringArg(args, "threadId"),
		}

		created, err := sc.Drafts().Create(ctx, d)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create draft: %v", err)), nil
		}

		result, _ := json.MarshalIndent(created, "", "  ")
		return mcp.NewToolResultText(fmt.Sprintf("Draft created:\n%s", string(result))), nil
	}))

	// Update draft tool
	updateDraftTool := mcp.NewTool("mail_update_draft",
		mcp.WithDescription("Update a draft. Only the provided fields change; passing an empty string clears a field."),
		mcp.WithString("draftId",
			mcp.Required(),
			mcp.Description("The ID of the draft to update"),
		),
		mcp.WithString("to",
			mcp.Description("New recipient addresses, comma-separated"),
		),
		mcp.WithString("cc",
			mcp.Description("New cc addresses, comma-separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("New bcc addresses, comma-separated"),
		),
		mcp.WithString("subject",
			mcp.Description("New subject"),
		),
		mcp.WithString("body",
			mcp.Description("New plain-text body"),
		),
		mcp.WithString("threadId",
			mcp.Description("New target thread"),
		),
	)

	s.AddTool(updateDraftTool, common.InstrumentedToolHandlerWithOperation("mail_update_draft", instrumentation.OperationUpdate, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		draftID := getStringArg(args, "draftId")
		if draftID == "" {
			return mcp.NewToolResultError("draftId is required"), nil
		}

		update := store.DraftUpdate{
			To:       optionalStringArg(args, "to"),
			Cc:       optionalStringArg(args, "cc"),
			Bcc:      optionalStringArg(args, "bcc"),
			Subject:  optionalStringArg(args, "subject"),
			BodyText: optionalStringArg(args, "body"),
			ThreadID: optionalStringArg(args, "threadId"),
		}

		updated, err := sc.Drafts().Update(ctx, draftID, update)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Draft %s not found", draftID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to update draft: %v", err)), nil
		}

		result, _ := json.MarshalIndent(updated, "", "  ")
		return mcp.NewToolResultText(fmt.Sprintf("Draft updated:\n%s", string(result))), nil
	}))

	// Get draft tool
	getDraftTool := mcp.NewTool("mail_get_draft",
		mcp.WithDescription("Get a draft by ID"),
		mcp.WithString("draftId",
			mcp.Required(),
			mcp.Description("The ID of the draft to retrieve"),
		),
	)

	s.AddTool(getDraftTool, common.InstrumentedToolHandlerWithOperation("mail_get_draft", instrumentation.OperationGet, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		draftID := getStringArg(args, "draftId")
		if draftID == "" {
			return mcp.NewToolResultError("draftId is required"), nil
		}

		d, err := sc.Drafts().Get(ctx, draftID)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Draft %s not found", draftID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get draft: %v", err)), nil
		}

		result, _ := json.MarshalIndent(d, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// List drafts tool
	listDraftsTool := mcp.NewTool("mail_list_drafts",
		mcp.WithDescription("List drafts, most recently updated first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of drafts to return (default: 50)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of drafts to skip for pagination"),
		),
	)

	s.AddTool(listDraftsTool, common.InstrumentedToolHandlerWithOperation("mail_list_drafts", instrumentation.OperationList, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		drafts, err := sc.Drafts().List(ctx,
			getIntArg(args, "limit", defaultListLimit),
			getIntArg(args, "offset", 0),
		)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list drafts: %v", err)), nil
		}

		result, _ := json.MarshalIndent(drafts, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}))

	// Delete draft tool
	deleteDraftTool := mcp.NewTool("mail_delete_draft",
		mcp.WithDescription("Delete a draft"),
		mcp.WithString("draftId",
			mcp.Required(),
			mcp.Description("The ID of the draft to delete"),
		),
	)

	s.AddTool(deleteDraftTool, common.InstrumentedToolHandlerWithOperation("mail_delete_draft", instrumentation.OperationDelete, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		draftID := getStringArg(args, "draftId")
		if draftID == "" {
			return mcp.NewToolResultError("draftId is required"), nil
		}

		err := sc.Drafts().Delete(ctx, draftID)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Draft %s not found", draftID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete draft: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Draft %s deleted", draftID)), nil
	}))

	// Send draft tool
	sendDraftTool := mcp.NewTool("mail_send_draft",
		mcp.WithDescription("Send a draft. On success the draft is consumed and replaced by the sent message in the same transaction; on failure the draft is kept."),
		mcp.WithString("draftId",
			mcp.Required(),
			mcp.Description("The ID of the draft to send"),
		),
	)

	s.AddTool(sendDraftTool, common.InstrumentedToolHandlerWithOperation("mail_send_draft", instrumentation.OperationSend, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		draftID := getStringArg(args, "draftId")
		if draftID == "" {
			return mcp.NewToolResultError("draftId is required"), nil
		}

		res, err := sc.Drafts().Send(ctx, draftID)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Draft %s not found", draftID)), nil
		}
		if errors.Is(err, compose.ErrValidation) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to send draft: %v", err)), nil
		}

		result, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(fmt.Sprintf("Draft sent:\n%s", string(result))), nil
	}))

	return nil
}
