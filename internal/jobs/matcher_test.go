package jobs

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testProfile = UserProfile{
	Name:               "AI/ML Engineer",
	Skills:             []string{"Python", "NLP", "LLM"},
	PreferredLocations: []string{"Berlin", "Remote"},
	YearsOfExperience:  3,
}

func TestScorePerfectMatchIsOne(t *testing.T) {
	posting := JobPosting{
		Title:          "NLP Engineer",
		RequiredSkills: []string{"Python"}, // strict subset of profile skills
		Location:       "Berlin",
		RequiredYears:  0,
	}
	assert.InDelta(t, 1.0, Score(testProfile, posting), 1e-9)
}

func TestExplainBreakdownMatchesScore(t *testing.T) {
	posting := JobPosting{
		RequiredSkills: []string{"Python", "Rust"},
		Location:       "Berlin",
		RequiredYears:  6,
	}
	score, b := Explain(testProfile, posting)
	assert.InDelta(t, 0.5, b.SkillOverlap, 1e-9)
	assert.InDelta(t, 1.0, b.LocationFit, 1e-9)
	assert.InDelta(t, 0.5, b.ExperienceFit, 1e-9)
	assert.InDelta(t, score, Score(testProfile, posting), 1e-9)
	assert.InDelta(t, 0.5*0.5+0.3*1.0+0.2*0.5, score, 1e-9)
}

func TestScoreRemoteCountsAsPreferredLocation(t *testing.T) {
	profile := UserProfile{Skills: []string{"Python", "NLP"}, PreferredLocations: []string{"India"}}
	posting := JobPosting{
		RequiredSkills: []string{"Python"},
		Location:       "Anywhere",
		Remote:         true,
		RequiredYears:  0,
	}
	assert.InDelta(t, 1.0, Score(profile, posting), 1e-9)
}

func TestScoreComponents(t *testing.T) {
	tests := []struct {
		name    string
		posting JobPosting
		want    float64
	}{
		{
			"no skill hits, wrong location, too demanding",
			JobPosting{RequiredSkills: []string{"Rust", "C++"}, Location: "Tokyo", RequiredYears: 10},
			0.2 * 3.0 / 10.0,
		},
		{
			"half the skills, preferred location",
			JobPosting{RequiredSkills: []string{"Python", "Rust"}, Location: "berlin"},
			0.5*0.5 + 0.3 + 0.2,
		},
		{
			"all skills, wrong location",
			JobPosting{RequiredSkills: []string{"python", "nlp"}, Location: "Tokyo"},
			0.5 + 0.2,
		},
		{
			"no required skills counts as covered",
			JobPosting{Location: "Berlin"},
			1.0,
		},
		{
			"experience shortfall scales proportionally",
			JobPosting{RequiredSkills: []string{"Python"}, Location: "Berlin", RequiredYears: 6},
			0.5 + 0.3 + 0.2*0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(testProfile, tt.posting), 1e-9)
		})
	}
}

func TestScoreBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		posting := JobPosting{
			RequiredSkills: rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 10).Draw(t, "required"),
			Location:       rapid.StringMatching(`[A-Za-z ]{0,20}`).Draw(t, "location"),
			Remote:         rapid.Bool().Draw(t, "remote"),
			RequiredYears:  rapid.IntRange(0, 30).Draw(t, "years"),
		}
		s := Score(testProfile, posting)
		if s < 0 || s > 1 {
			t.Fatalf("score %v out of [0,1]", s)
		}
	})
}

func TestScoreMonotonicInSkillOverlap(t *testing.T) {
	// Profile with enough distinct skills to cover any draw.
	profile := UserProfile{
		Skills:            []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7"},
		YearsOfExperience: 3,
	}
	unmetPool := []string{"u0", "u1", "u2", "u3", "u4", "u5", "u6", "u7"}

	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 8).Draw(t, "total")
		met := rapid.IntRange(0, total-1).Draw(t, "met")
		location := rapid.SampledFrom([]string{"Berlin", "Tokyo", ""}).Draw(t, "location")
		years := rapid.IntRange(0, 10).Draw(t, "years")

		required := func(metCount int) []string {
			skills := append([]string{}, profile.Skills[:metCount]...)
			return append(skills, unmetPool[:total-metCount]...)
		}
		base := JobPosting{RequiredSkills: required(met), Location: location, RequiredYears: years}
		improved := JobPosting{RequiredSkills: required(met + 1), Location: location, RequiredYears: years}

		// Covering one more required skill, all else equal, never lowers
		// the score.
		if Score(profile, improved) < Score(profile, base) {
			t.Fatalf("higher overlap scored lower: met=%d total=%d", met, total)
		}
	})
}

func TestRankOrdersByScoreThenRecency(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }
	postings := []JobPosting{
		{ID: "old-perfect", RequiredSkills: []string{"Python"}, Location: "Berlin", PostedAt: day(1)},
		{ID: "new-perfect", RequiredSkills: []string{"NLP"}, Location: "Berlin", PostedAt: day(20)},
		{ID: "weak", RequiredSkills: []string{"Rust"}, Location: "Tokyo", PostedAt: day(25)},
	}

	ranked := Rank(testProfile, postings)
	require.Len(t, ranked, 3)
	assert.Equal(t, "new-perfect", ranked[0].Posting.ID, "ties break toward the newer posting")
	assert.Equal(t, "old-perfect", ranked[1].Posting.ID)
	assert.Equal(t, "weak", ranked[2].Posting.ID)
}

func TestRankEndToEndScenario(t *testing.T) {
	profile := UserProfile{
		Skills:             []string{"Python", "NLP"},
		PreferredLocations: []string{"Remote"},
	}
	match := JobPosting{ID: "p1", RequiredSkills: []string{"Python"}, Location: "Remote", Remote: true}
	miss := JobPosting{ID: "p2", RequiredSkills: []string{"COBOL", "Fortran"}, Location: "Remote", Remote: true}

	ranked := Rank(profile, []JobPosting{miss, match})
	require.Len(t, ranked, 2)
	assert.Equal(t, "p1", ranked[0].Posting.ID)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
	assert.Less(t, ranked[1].Score, ranked[0].Score)
}

func TestRankIsDeterministic(t *testing.T) {
	postings := make([]JobPosting, 20)
	for i := range postings {
		postings[i] = JobPosting{ID: fmt.Sprintf("p%02d", i), Location: "Berlin"}
	}
	first := Rank(testProfile, postings)
	second := Rank(testProfile, postings)
	assert.Equal(t, first, second)
}
