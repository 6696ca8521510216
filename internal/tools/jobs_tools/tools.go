// Package jobs_tools exposes the job-search and digest operations as MCP
// tools.
package jobs_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/seekmail/seekmail/internal/digest"
	"github.com/seekmail/seekmail/internal/instrumentation"
	"github.com/seekmail/seekmail/internal/jobs"
	"github.com/seekmail/seekmail/internal/server"
	"github.com/seekmail/seekmail/internal/tools/common"
)

// RegisterJobsTools registers job-search tools with the MCP server.
func RegisterJobsTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	searchTool := mcp.NewTool("jobs_search",
		mcp.WithDescription("Search current job postings. Defaults to the configured profile's skills and locations."),
		mcp.WithString("keywords",
			mcp.Description("Comma-separated title keywords (default: profile skills)"),
		),
		mcp.WithString("locations",
			mcp.Description("Comma-separated location patterns (default: profile preferred locations)"),
		),
		mcp.WithNumber("maxAgeDays",
			mcp.Description("Only postings newer than this many days (default: 7)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of postings to return (default: 20)"),
		),
	)
	s.AddTool(searchTool, common.InstrumentedToolHandler("jobs_search", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearch(ctx, request, sc)
		}))

	matchTool := mcp.NewTool("jobs_match",
		mcp.WithDescription("Search postings and rank them against the configured profile, best match first"),
		mcp.WithNumber("maxAgeDays",
			mcp.Description("Only postings newer than this many days (default: 7)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of ranked postings to return (default: 10)"),
		),
	)
	s.AddTool(matchTool, common.InstrumentedToolHandler("jobs_match", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleMatch(ctx, request, sc)
		}))

	digestTool := mcp.NewTool("jobs_send_digest",
		mcp.WithDescription("Run one digest cycle now: search postings, rank them against the profile, and email the result"),
		mcp.WithString("to",
			mcp.Description("Destination address (default: the configured digest recipient)"),
		),
	)
	s.AddTool(digestTool, common.InstrumentedToolHandler("jobs_send_digest", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendDigest(ctx, request, sc)
		}))

	return nil
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	client, err := sc.Jobs()
	if err != nil {
		return common.ErrResult(err), nil
	}
	profile, err := sc.Profile()
	if err != nil {
		return common.ErrResult(err), nil
	}

	filters := profile.DerivedFilters()
	if kw := common.StringArg(args, "keywords"); kw != "" {
		filters.TitleKeywords = splitList(kw)
	}
	if loc := common.StringArg(args, "locations"); loc != "" {
		filters.Locations = splitList(loc)
	}
	if d := common.IntArg(args, "maxAgeDays"); d > 0 {
		filters.MaxAgeDays = d
	}
	filters.MaxResults = 20
	if n := common.IntArg(args, "maxResults"); n > 0 {
		filters.MaxResults = n
	}

	postings, err := client.SearchAll(ctx, filters)
	if err != nil {
		return common.ErrResult(err), nil
	}
	if len(postings) == 0 {
		return mcp.NewToolResultText("No postings matched the search."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d posting(s):\n\n", len(postings))
	for _, p := range postings {
		b.WriteString(formatPosting(p, -1))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleMatch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	client, err := sc.Jobs()
	if err != nil {
		return common.ErrResult(err), nil
	}
	profile, err := sc.Profile()
	if err != nil {
		return common.ErrResult(err), nil
	}

	filters := profile.DerivedFilters()
	if d := common.IntArg(args, "maxAgeDays"); d > 0 {
		filters.MaxAgeDays = d
	}
	limit := 10
	if n := common.IntArg(args, "maxResults"); n > 0 {
		limit = n
	}

	postings, err := client.SearchAll(ctx, filters)
	if err != nil {
		return common.ErrResult(err), nil
	}

	ranked := jobs.Rank(profile, postings)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if len(ranked) == 0 {
		return mcp.NewToolResultText("No postings to rank."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d match(es) for %s:\n\n", len(ranked), profile.Name)
	for _, sp := range ranked {
		entry := formatPosting(sp.Posting, sp.Score)
		_, breakdown := jobs.Explain(profile, sp.Posting)
		entry = strings.TrimRight(entry, "\n")
		b.WriteString(entry)
		fmt.Fprintf(&b, "\n  fit: skills %.0f%%, location %.0f%%, experience %.0f%%\n\n",
			breakdown.SkillOverlap*100, breakdown.LocationFit*100, breakdown.ExperienceFit*100)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleSendDigest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	to := common.StringArg(request.GetArguments(), "to")
	if to == "" {
		to = sc.Config().DigestTo
	}
	if to == "" {
		return mcp.NewToolResultError("no destination address; pass 'to' or configure --digest-to"), nil
	}

	client, err := sc.Jobs()
	if err != nil {
		return common.ErrResult(err), nil
	}
	profile, err := sc.Profile()
	if err != nil {
		return common.ErrResult(err), nil
	}
	sender, err := sc.Gmail()
	if err != nil {
		return common.ErrResult(err), nil
	}

	sched := digest.New(digest.Config{Profile: profile, To: to}, client, sender, sc.Logger())
	sched.OnCycle = func(ok bool) {
		status := instrumentation.StatusError
		if ok {
			status = instrumentation.StatusSuccess
		}
		sc.Metrics().RecordDigestCycle(ctx, status)
	}
	if err := sched.RunCycle(ctx); err != nil {
		return common.ErrResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Digest sent to %s", to)), nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// formatPosting renders one posting; score < 0 omits the score line.
func formatPosting(p jobs.JobPosting, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s at %s", p.Title, p.Company)
	if score >= 0 {
		fmt.Fprintf(&b, " (score %.2f)", score)
	}
	b.WriteString("\n")

	location := p.Location
	if p.Remote && !strings.EqualFold(location, "remote") {
		location += " (remote)"
	}
	fmt.Fprintf(&b, "  %s", location)
	if !p.PostedAt.IsZero() {
		fmt.Fprintf(&b, " · posted %s", p.PostedAt.Format("2006-01-02"))
	}
	if p.Salary != "" {
		fmt.Fprintf(&b, " · %s", p.Salary)
	}
	b.WriteString("\n")
	if len(p.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "  skills: %s\n", strings.Join(p.RequiredSkills, ", "))
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "  %s\n", p.URL)
	}
	b.WriteString("\n")
	return b.String()
}
