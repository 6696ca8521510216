package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JobPosting is one posting as seen during a single digest or search cycle.
// Postings are never persisted; the id is only stable within the provider.
type JobPosting struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	Remote         bool      `json:"remote"`
	PostedAt       time.Time `json:"posted_at"`
	RequiredSkills []string  `json:"required_skills"`
	RequiredYears  int       `json:"required_years"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	Salary         string    `json:"salary,omitempty"`
	Seniority      string    `json:"seniority,omitempty"`
}

// UserProfile is the job-seeker profile postings are scored against. It is
// loaded once at startup and passed by value; nothing mutates it after load.
type UserProfile struct {
	Name               string   `json:"name"`
	Skills             []string `json:"skills"`
	PreferredLocations []string `json:"preferred_locations"`
	YearsOfExperience  int      `json:"years_of_experience"`
	Experience         string   `json:"experience,omitempty"`
}

// LoadProfile reads a profile from a JSON file.
func LoadProfile(path string) (UserProfile, error) {
	var p UserProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if len(p.Skills) == 0 {
		return p, fmt.Errorf("profile %s lists no skills", path)
	}
	return p, nil
}

// SearchFilters constrain a posting search. SkillKeywords double as the
// vocabulary for tagging each result's required skills.
type SearchFilters struct {
	TitleKeywords []string
	SkillKeywords []string
	Locations     []string
	CountryCodes  []string
	MaxAgeDays    int
	PageSize      int
	MaxResults    int
}

// DerivedFilters builds the default search for a profile: its skills as
// both title and skill keywords, its preferred locations, one week back.
func (p UserProfile) DerivedFilters() SearchFilters {
	return SearchFilters{
		TitleKeywords: p.Skills,
		SkillKeywords: p.Skills,
		Locations:     p.PreferredLocations,
		MaxAgeDays:    7,
	}
}

// ScoredPosting pairs a posting with its profile-match score.
type ScoredPosting struct {
	Posting JobPosting `json:"posting"`
	Score   float64    `json:"score"`
}

// DigestReport is one digest cycle's ranked output, consumed once for
// delivery and then discarded.
type DigestReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Profile     string          `json:"profile"`
	Postings    []ScoredPosting `json:"postings"`
}
