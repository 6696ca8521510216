package gmail_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/seekmail/seekmail/internal/browser"
	"github.com/seekmail/seekmail/internal/gmail"
	"github.com/seekmail/seekmail/internal/logging"
	"github.com/seekmail/seekmail/internal/server"
	"github.com/seekmail/seekmail/internal/tools/common"
)

// RegisterEmailTools registers message-level tools with the MCP server.
func RegisterEmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sendTool := mcp.NewTool("gmail_send_email",
		mcp.WithDescription("Send a plain-text email from the authenticated account"),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text email body"),
		),
	)
	s.AddTool(sendTool, common.InstrumentedToolHandler("gmail_send_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendEmail(ctx, request, sc)
		}))

	draftTool := mcp.NewTool("gmail_create_draft",
		mcp.WithDescription("Create a draft email without sending it"),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text email body"),
		),
	)
	s.AddTool(draftTool, common.InstrumentedToolHandler("gmail_create_draft", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateDraft(ctx, request, sc)
		}))

	listDraftsTool := mcp.NewTool("gmail_list_drafts",
		mcp.WithDescription("List stored draft emails with recipient and subject"),
	)
	s.AddTool(listDraftsTool, common.InstrumentedToolHandler("gmail_list_drafts", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListDrafts(ctx, request, sc)
		}))

	unreadTool := mcp.NewTool("gmail_get_unread",
		mcp.WithDescription("List unread emails, newest first"),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of emails to return (default: 50)"),
		),
	)
	s.AddTool(unreadTool, common.InstrumentedToolHandler("gmail_get_unread", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEmails(ctx, request, sc, "in:inbox is:unread")
		}))

	readTool := mcp.NewTool("gmail_read_email",
		mcp.WithDescription("Read an email's full content and mark it as read"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to read"),
		),
	)
	s.AddTool(readTool, common.InstrumentedToolHandler("gmail_read_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadEmail(ctx, request, sc)
		}))

	searchTool := mcp.NewTool("gmail_search_emails",
		mcp.WithDescription("Search emails with a Gmail query (e.g. 'from:jobs@example.com newer_than:7d')"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail search query"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of emails to return (default: 50)"),
		),
		mcp.WithString("pageToken",
			mcp.Description("Continuation token from a previous search"),
		),
	)
	s.AddTool(searchTool, common.InstrumentedToolHandler("gmail_search_emails", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query := common.StringArg(request.GetArguments(), "query")
			if query == "" {
				return mcp.NewToolResultError("query is required"), nil
			}
			return handleListEmails(ctx, request, sc, query)
		}))

	trashTool := mcp.NewTool("gmail_trash_email",
		mcp.WithDescription("Move an email to the trash"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to trash"),
		),
	)
	s.AddTool(trashTool, common.InstrumentedToolHandler("gmail_trash_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleTrashEmail(ctx, request, sc)
		}))

	markReadTool := mcp.NewTool("gmail_mark_read",
		mcp.WithDescription("Mark an email as read without fetching its content"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to mark as read"),
		),
	)
	s.AddTool(markReadTool, common.InstrumentedToolHandler("gmail_mark_read", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMarkRead(ctx, request, sc)
		}))

	openTool := mcp.NewTool("gmail_open_email",
		mcp.WithDescription("Open an email in the default browser via its Gmail permalink"),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("The ID of the message to open"),
		),
	)
	s.AddTool(openTool, common.InstrumentedToolHandler("gmail_open_email", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleOpenEmail(ctx, request, sc)
		}))

	return nil
}

func handleSendEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	to := common.StringArg(args, "to")
	subject := common.StringArg(args, "subject")
	body := common.StringArg(args, "body")
	if to == "" || subject == "" || body == "" {
		return mcp.NewToolResultError("to, subject and body are required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	id, err := client.Send(ctx, to, subject, body)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Email sent to %s (message ID: %s)", to, id)), nil
}

func handleCreateDraft(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	to := common.StringArg(args, "to")
	subject := common.StringArg(args, "subject")
	body := common.StringArg(args, "body")
	if to == "" || subject == "" || body == "" {
		return mcp.NewToolResultError("to, subject and body are required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	id, err := client.CreateDraft(ctx, to, subject, body)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Draft created (draft ID: %s)", id)), nil
}

func handleListDrafts(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	drafts, err := client.ListDrafts(ctx)
	if err != nil {
		return common.ErrResult(err), nil
	}
	if len(drafts) == 0 {
		return mcp.NewToolResultText("No drafts found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d draft(s):\n\n", len(drafts))
	for _, d := range drafts {
		fmt.Fprintf(&b, "- %s | to: %s | subject: %s\n", d.ID, d.To, d.Subject)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleListEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, query string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	page, err := client.List(ctx, query, common.StringArg(args, "pageToken"), int64(common.IntArg(args, "maxResults")))
	if err != nil {
		return common.ErrResult(err), nil
	}
	if len(page.Messages) == 0 {
		return mcp.NewToolResultText("No matching emails."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d email(s):\n\n", len(page.Messages))
	for _, e := range page.Messages {
		b.WriteString(formatEmailSummary(&e))
	}
	if page.NextPageToken != "" {
		fmt.Fprintf(&b, "\nMore results available; pass pageToken: %s\n", page.NextPageToken)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleReadEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "messageId")
	if id == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	email, err := client.Get(ctx, id)
	if err != nil {
		return common.ErrResult(err), nil
	}
	// Reading implies marking read; failure to flip the flag does not hide
	// the content.
	if email.Unread() {
		if err := client.MarkRead(ctx, id); err != nil {
			sc.Logger().Warn("failed to mark message read",
				logging.MessageID(id), logging.Err(err))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", email.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(email.To, ", "))
	fmt.Fprintf(&b, "Date: %s\n", email.Date)
	fmt.Fprintf(&b, "Subject: %s\n\n", email.Subject)
	b.WriteString(email.Body)
	return mcp.NewToolResultText(b.String()), nil
}

func handleTrashEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "messageId")
	if id == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	if err := client.Trash(ctx, id); err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Message %s moved to trash", id)), nil
}

func handleMarkRead(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "messageId")
	if id == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	client, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}
	if err := client.MarkRead(ctx, id); err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Message %s marked as read", id)), nil
}

func handleOpenEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "messageId")
	if id == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	url := gmail.PermalinkURL(id)
	if err := browser.OpenURL(url); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open browser: %v. URL: %s", err, url)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Opened %s in the browser", url)), nil
}

func formatEmailSummary(e *gmail.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s", e.ID)
	if e.Unread() {
		b.WriteString(" [unread]")
	}
	fmt.Fprintf(&b, "\n  From: %s\n  Subject: %s\n  Date: %s\n", e.From, e.Subject, e.Date)
	if e.Snippet != "" {
		fmt.Fprintf(&b, "  %s\n", e.Snippet)
	}
	return b.String()
}
