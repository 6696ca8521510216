package digest

import (
	"fmt"
	"strings"

	"github.com/seekmail/seekmail/internal/jobs"
)

// Compose renders a report as a plain-text email. The body is stable for a
// given report, so a resent digest is byte-identical.
func Compose(report *jobs.DigestReport) (subject, body string) {
	date := report.GeneratedAt.Format("Mon, 02 Jan 2006")
	subject = fmt.Sprintf("Job digest: %d matching postings (%s)", len(report.Postings), date)

	var b strings.Builder
	fmt.Fprintf(&b, "Job digest for %s, generated %s.\n\n", report.Profile, date)

	if len(report.Postings) == 0 {
		b.WriteString("No new postings matched your profile this cycle.\n")
		return subject, b.String()
	}

	for i, sp := range report.Postings {
		p := sp.Posting
		fmt.Fprintf(&b, "%d. %s at %s (score %.2f)\n", i+1, p.Title, p.Company, sp.Score)

		location := p.Location
		if p.Remote && !strings.EqualFold(location, "remote") {
			location += " (remote)"
		}
		fmt.Fprintf(&b, "   %s", location)
		if !p.PostedAt.IsZero() {
			fmt.Fprintf(&b, " · posted %s", p.PostedAt.Format("2006-01-02"))
		}
		if p.Salary != "" {
			fmt.Fprintf(&b, " · %s", p.Salary)
		}
		b.WriteString("\n")

		if len(p.RequiredSkills) > 0 {
			fmt.Fprintf(&b, "   skills: %s\n", strings.Join(p.RequiredSkills, ", "))
		}
		if p.URL != "" {
			fmt.Fprintf(&b, "   %s\n", p.URL)
		}
		b.WriteString("\n")
	}
	return subject, b.String()
}
