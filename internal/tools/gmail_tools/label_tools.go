package gmail_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/seekmail/seekmail/internal/gmail"
	"github.com/seekmail/seekmail/internal/server"
	"github.com/seekmail/seekmail/internal/tools/common"
)

// RegisterLabelTools registers label and virtual-folder tools with the MCP
// server. Folders are user labels under a single-membership policy; plain
// label tools bypass that policy for system labels and multi-tagging.
func RegisterLabelTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listLabelsTool := mcp.NewTool("gmail_list_labels",
		mcp.WithDescription("List all labels, system and user. Use this to get label IDs for filters and folders."),
	)
	s.AddTool(listLabelsTool, common.InstrumentedToolHandler("gmail_list_labels", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListLabels(ctx, request, sc)
		}))

	createLabelTool := mcp.NewTool("gmail_create_label",
		mcp.WithDescription("Create a new user label"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the label to create"),
		),
	)
	s.AddTool(createLabelTool, common.InstrumentedToolHandler("gmail_create_label", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateLabel(ctx, request, sc)
		}))

	applyLabelTool := mcp.NewTool("gmail_apply_label",
		mcp.WithDescription("Add a label to a message without touching its other labels"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message"),
		),
		mcp.WithString("labelId",
			mcp.Required(),
			mcp.Description("The ID of the label to add"),
		),
	)
	s.AddTool(applyLabelTool, common.InstrumentedToolHandler("gmail_apply_label", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleModifyLabel(ctx, request, sc, true)
		}))

	removeLabelTool := mcp.NewTool("gmail_remove_label",
		mcp.WithDescription("Remove a label from a message"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message"),
		),
		mcp.WithString("labelId",
			mcp.Required(),
			mcp.Description("The ID of the label to remove"),
		),
	)
	s.AddTool(removeLabelTool, common.InstrumentedToolHandler("gmail_remove_label", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleModifyLabel(ctx, request, sc, false)
		}))

	searchByLabelTool := mcp.NewTool("gmail_search_by_label",
		mcp.WithDescription("List emails carrying a label"),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Label name to search for (e.g. 'Applications' or 'INBOX')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of emails to return (default: 50)"),
		),
	)
	s.AddTool(searchByLabelTool, common.InstrumentedToolHandler("gmail_search_by_label", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			label := common.StringArg(request.GetArguments(), "label")
			if label == "" {
				return mcp.NewToolResultError("label is required"), nil
			}
			return handleListEmails(ctx, request, sc, fmt.Sprintf("label:%q", label))
		}))

	createFolderTool := mcp.NewTool("gmail_create_folder",
		mcp.WithDescription("Create a virtual folder (a user label under the one-folder-per-message policy)"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the folder to create"),
		),
	)
	s.AddTool(createFolderTool, common.InstrumentedToolHandler("gmail_create_folder", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateFolder(ctx, request, sc)
		}))

	listFoldersTool := mcp.NewTool("gmail_list_folders",
		mcp.WithDescription("List all virtual folders"),
	)
	s.AddTool(listFoldersTool, common.InstrumentedToolHandler("gmail_list_folders", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListFolders(ctx, request, sc)
		}))

	moveTool := mcp.NewTool("gmail_move_to_folder",
		mcp.WithDescription("Move a message into a folder, removing it from any other folder. Does not archive."),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to move"),
		),
		mcp.WithString("folderId",
			mcp.Required(),
			mcp.Description("The ID of the destination folder (from gmail_list_folders)"),
		),
	)
	s.AddTool(moveTool, common.InstrumentedToolHandler("gmail_move_to_folder", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMoveToFolder(ctx, request, sc)
		}))

	archiveTool := mcp.NewTool("gmail_archive_email",
		mcp.WithDescription("Archive an email (remove it from the inbox). Already-archived messages are left as is."),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to archive"),
		),
	)
	s.AddTool(archiveTool, common.InstrumentedToolHandler("gmail_archive_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleArchiveEmail(ctx, request, sc)
		}))

	restoreTool := mcp.NewTool("gmail_restore_email",
		mcp.WithDescription("Restore an archived email to the inbox"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to restore"),
		),
	)
	s.AddTool(restoreTool, common.InstrumentedToolHandler("gmail_restore_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRestoreEmail(ctx, request, sc)
		}))

	batchArchiveTool := mcp.NewTool("gmail_batch_archive",
		mcp.WithDescription("Archive every email matching a Gmail query. Best-effort: failures are reported per message, the batch continues."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query selecting the messages to archive (e.g. 'older_than:30d label:Newsletters')"),
		),
	)
	s.AddTool(batchArchiveTool, common.InstrumentedToolHandler("gmail_batch_archive", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleBatchArchive(ctx, request, sc)
		}))

	return nil
}

func handleListLabels(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	labels, err := client.Labels(ctx)
	if err != nil {
		return common.ErrResult(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d label(s):\n\n", len(labels))
	for _, l := range labels {
		fmt.Fprintf(&b, "- %s | %s (%s)\n", l.ID, l.Name, l.Kind)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleCreateLabel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name := common.StringArg(request.GetArguments(), "name")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	label, err := client.CreateLabel(ctx, name)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Label %q created (ID: %s)", label.Name, label.ID)), nil
}

func handleModifyLabel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, add bool) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	messageID := common.StringArg(args, "messageId")
	labelID := common.StringArg(args, "labelId")
	if messageID == "" || labelID == "" {
		return mcp.NewToolResultError("messageId and labelId are required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	var email *gmail.Email
	if add {
		email, err = client.ModifyLabels(ctx, messageID, []string{labelID}, nil)
	} else {
		email, err = client.ModifyLabels(ctx, messageID, nil, []string{labelID})
	}
	if err != nil {
		return common.ErrResult(err), nil
	}

	verb := "added to"
	if !add {
		verb = "removed from"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Label %s %s message %s. Labels now: %s",
		labelID, verb, messageID, strings.Join(email.LabelIDs, ", "))), nil
}

func handleCreateFolder(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name := common.StringArg(request.GetArguments(), "name")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	folders, err := sc.Folders()
	if err != nil {
		return common.ErrResult(err), nil
	}
	folder, err := folders.Create(ctx, name)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Folder %q created (ID: %s)", folder.Name, folder.ID)), nil
}

func handleListFolders(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	folders, err := sc.Folders()
	if err != nil {
		return common.ErrResult(err), nil
	}
	list, err := folders.List(ctx)
	if err != nil {
		return common.ErrResult(err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No folders yet. Create one with gmail_create_folder."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d folder(s):\n\n", len(list))
	for _, f := range list {
		fmt.Fprintf(&b, "- %s | %s\n", f.ID, f.Name)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleMoveToFolder(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	messageID := common.StringArg(args, "messageId")
	folderID := common.StringArg(args, "folderId")
	if messageID == "" || folderID == "" {
		return mcp.NewToolResultError("messageId and folderId are required"), nil
	}

	folders, err := sc.Folders()
	if err != nil {
		return common.ErrResult(err), nil
	}
	email, err := folders.Move(ctx, messageID, folderID)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Message %s moved. Labels now: %s",
		messageID, strings.Join(email.LabelIDs, ", "))), nil
}

func handleArchiveEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "messageId")
	if id == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	folders, err := sc.Folders()
	if err != nil {
		return common.ErrResult(err), nil
	}
	changed, err := folders.Archive(ctx, id)
	if err != nil {
		return common.ErrResult(err), nil
	}
	if !changed {
		return mcp.NewToolResultText(fmt.Sprintf("Message %s was already archived", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Message %s archived", id)), nil
}

func handleRestoreEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "messageId")
	if id == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	folders, err := sc.Folders()
	if err != nil {
		return common.ErrResult(err), nil
	}
	if _, err := folders.Restore(ctx, id); err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Message %s restored to inbox", id)), nil
}

func handleBatchArchive(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	query := common.StringArg(request.GetArguments(), "query")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	folders, err := sc.Folders()
	if err != nil {
		return common.ErrResult(err), nil
	}
	results, err := folders.BatchArchive(ctx, query)
	if err != nil && len(results) == 0 {
		return common.ErrResult(err), nil
	}

	archived, already, failed := 0, 0, 0
	var failures []string
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			failures = append(failures, fmt.Sprintf("- %s: %v", r.MessageID, r.Err))
		case r.Changed:
			archived++
		default:
			already++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Batch archive for query %q: %d archived, %d already archived, %d failed.\n",
		query, archived, already, failed)
	if len(failures) > 0 {
		b.WriteString("\nFailures:\n")
		b.WriteString(strings.Join(failures, "\n"))
		b.WriteString("\n")
	}
	if err != nil {
		fmt.Fprintf(&b, "\nListing stopped early: %v\n", err)
	}
	return mcp.NewToolResultText(b.String()), nil
}
