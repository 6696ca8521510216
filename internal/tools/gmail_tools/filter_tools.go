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

// RegisterFilterTools registers filter-rule tools with the MCP server.
func RegisterFilterTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	createOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Create a filter rule that routes matching incoming emails. Criteria combine with AND; at least one criterion and one action are required."),
	}, filterCriteriaOptions()...)
	createTool := mcp.NewTool("gmail_create_filter", createOpts...)
	s.AddTool(createTool, common.InstrumentedToolHandler("gmail_create_filter", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateFilter(ctx, request, sc)
		}))

	listTool := mcp.NewTool("gmail_list_filters",
		mcp.WithDescription("List all filter rules"),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("gmail_list_filters", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListFilters(ctx, request, sc)
		}))

	getTool := mcp.NewTool("gmail_get_filter",
		mcp.WithDescription("Show one filter rule by ID"),
		mcp.WithString("filterId",
			mcp.Required(),
			mcp.Description("The ID of the filter (from gmail_list_filters)"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("gmail_get_filter", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetFilter(ctx, request, sc)
		}))

	updateOpts := append([]mcp.ToolOption{
		mcp.WithString("filterId",
			mcp.Required(),
			mcp.Description("The ID of the filter to replace"),
		),
	}, filterCriteriaOptions()...)
	updateTool := mcp.NewTool("gmail_update_filter",
		append([]mcp.ToolOption{
			mcp.WithDescription("Replace a filter rule. The rule is re-created with the given criteria and actions and receives a new ID."),
		}, updateOpts...)...,
	)
	s.AddTool(updateTool, common.InstrumentedToolHandler("gmail_update_filter", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateFilter(ctx, request, sc)
		}))

	deleteTool := mcp.NewTool("gmail_delete_filter",
		mcp.WithDescription("Delete a filter rule by ID"),
		mcp.WithString("filterId",
			mcp.Required(),
			mcp.Description("The ID of the filter to delete"),
		),
	)
	s.AddTool(deleteTool, common.InstrumentedToolHandler("gmail_delete_filter", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteFilter(ctx, request, sc)
		}))

	return nil
}

// filterCriteriaOptions declares the shared criteria and action arguments
// for the create and update tools.
func filterCriteriaOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("from",
			mcp.Description("Match emails from this sender (substring, e.g. 'newsletter@example.com')"),
		),
		mcp.WithString("to",
			mcp.Description("Match emails sent to this recipient"),
		),
		mcp.WithString("subject",
			mcp.Description("Match emails whose subject contains this text"),
		),
		mcp.WithString("query",
			mcp.Description("Gmail search query for advanced matching (e.g. 'has:attachment larger:10M')"),
		),
		mcp.WithBoolean("hasAttachment",
			mcp.Description("Match only emails with attachments"),
		),
		mcp.WithString("addLabelIds",
			mcp.Description("Comma-separated label IDs to add (from gmail_list_labels)"),
		),
		mcp.WithString("removeLabelIds",
			mcp.Description("Comma-separated label IDs to remove"),
		),
		mcp.WithBoolean("skipInbox",
			mcp.Description("Route matching emails past the inbox (archive on arrival)"),
		),
		mcp.WithBoolean("keepInbox",
			mcp.Description("Keep matching emails in the inbox, overriding an earlier rule's skipInbox"),
		),
		mcp.WithBoolean("markRead",
			mcp.Description("Mark matching emails as read"),
		),
	}
}

func parseFilterArgs(args map[string]any) (gmail.FilterCriteria, gmail.FilterActions) {
	criteria := gmail.FilterCriteria{
		From:          common.StringArg(args, "from"),
		To:            common.StringArg(args, "to"),
		Subject:       common.StringArg(args, "subject"),
		Query:         common.StringArg(args, "query"),
		HasAttachment: common.BoolArg(args, "hasAttachment"),
	}
	actions := gmail.FilterActions{
		SkipInbox: common.BoolArg(args, "skipInbox"),
		KeepInbox: common.BoolArg(args, "keepInbox"),
		MarkRead:  common.BoolArg(args, "markRead"),
	}
	if s := common.StringArg(args, "addLabelIds"); s != "" {
		actions.AddLabelIDs = splitLabelIDs(s)
	}
	if s := common.StringArg(args, "removeLabelIds"); s != "" {
		actions.RemoveLabelIDs = splitLabelIDs(s)
	}
	return criteria, actions
}

func splitLabelIDs(s string) []string {
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func handleCreateFilter(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	criteria, actions := parseFilterArgs(request.GetArguments())

	engine, err := sc.Filters()
	if err != nil {
		return common.ErrResult(err), nil
	}
	rule, err := engine.Create(ctx, criteria, actions)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText("Filter created.\n\n" + formatFilterRule(rule)), nil
}

func handleListFilters(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	engine, err := sc.Filters()
	if err != nil {
		return common.ErrResult(err), nil
	}
	rules, err := engine.List(ctx)
	if err != nil {
		return common.ErrResult(err), nil
	}
	if len(rules) == 0 {
		return mcp.NewToolResultText("No filters configured."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d filter(s):\n\n", len(rules))
	for i := range rules {
		b.WriteString(formatFilterRule(&rules[i]))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleGetFilter(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "filterId")
	if id == "" {
		return mcp.NewToolResultError("filterId is required"), nil
	}

	engine, err := sc.Filters()
	if err != nil {
		return common.ErrResult(err), nil
	}
	rule, err := engine.Get(ctx, id)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(formatFilterRule(rule)), nil
}

func handleUpdateFilter(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id := common.StringArg(args, "filterId")
	if id == "" {
		return mcp.NewToolResultError("filterId is required"), nil
	}
	criteria, actions := parseFilterArgs(args)

	engine, err := sc.Filters()
	if err != nil {
		return common.ErrResult(err), nil
	}
	rule, err := engine.Update(ctx, id, criteria, actions)
	if err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Filter %s replaced.\n\n%s", id, formatFilterRule(rule))), nil
}

func handleDeleteFilter(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "filterId")
	if id == "" {
		return mcp.NewToolResultError("filterId is required"), nil
	}

	engine, err := sc.Filters()
	if err != nil {
		return common.ErrResult(err), nil
	}
	if err := engine.Delete(ctx, id); err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Filter %s deleted", id)), nil
}

func formatFilterRule(r *gmail.FilterRule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filter %s\n", r.ID)

	var criteria []string
	if r.Criteria.From != "" {
		criteria = append(criteria, "from: "+r.Criteria.From)
	}
	if r.Criteria.To != "" {
		criteria = append(criteria, "to: "+r.Criteria.To)
	}
	if r.Criteria.Subject != "" {
		criteria = append(criteria, "subject: "+r.Criteria.Subject)
	}
	if r.Criteria.Query != "" {
		criteria = append(criteria, "query: "+r.Criteria.Query)
	}
	if r.Criteria.HasAttachment {
		criteria = append(criteria, "has attachment")
	}
	fmt.Fprintf(&b, "  Criteria: %s\n", strings.Join(criteria, "; "))

	var actions []string
	if len(r.Actions.AddLabelIDs) > 0 {
		actions = append(actions, "add labels: "+strings.Join(r.Actions.AddLabelIDs, ", "))
	}
	if len(r.Actions.RemoveLabelIDs) > 0 {
		actions = append(actions, "remove labels: "+strings.Join(r.Actions.RemoveLabelIDs, ", "))
	}
	if r.Actions.SkipInbox {
		actions = append(actions, "skip inbox")
	}
	if r.Actions.KeepInbox {
		actions = append(actions, "keep in inbox")
	}
	if r.Actions.MarkRead {
		actions = append(actions, "mark read")
	}
	fmt.Fprintf(&b, "  Actions: %s\n", strings.Join(actions, "; "))
	return b.String()
}
