package jobs

import (
	"sort"
	"strings"
)

// Score weights. They sum to 1 so a posting requiring a subset of the
// profile's skills, at a preferred location, within experience bounds,
// scores exactly 1.
const (
	skillWeight      = 0.5
	locationWeight   = 0.3
	experienceWeight = 0.2
)

// Breakdown carries the per-component fit behind a score, each in [0,1]
// before weighting.
type Breakdown struct {
	SkillOverlap  float64
	LocationFit   float64
	ExperienceFit float64
}

// Score rates a posting against a profile in [0,1]. Pure and deterministic:
// the same inputs always produce the same score.
func Score(profile UserProfile, posting JobPosting) float64 {
	s, _ := Explain(profile, posting)
	return s
}

// Explain returns the score together with its component breakdown.
func Explain(profile UserProfile, posting JobPosting) (float64, Breakdown) {
	b := Breakdown{
		SkillOverlap:  skillOverlap(profile.Skills, posting.RequiredSkills),
		LocationFit:   locationFit(profile.PreferredLocations, posting),
		ExperienceFit: experienceFit(profile.YearsOfExperience, posting.RequiredYears),
	}
	score := skillWeight*b.SkillOverlap + locationWeight*b.LocationFit + experienceWeight*b.ExperienceFit
	return score, b
}

// skillOverlap is the fraction of required skills the profile covers. A
// posting requiring nothing is fully covered.
func skillOverlap(have, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	haveSet := make(map[string]bool, len(have))
	for _, s := range have {
		haveSet[strings.ToLower(s)] = true
	}
	hits := 0
	for _, s := range required {
		if haveSet[strings.ToLower(s)] {
			hits++
		}
	}
	return float64(hits) / float64(len(required))
}

// locationFit gives full credit for remote postings and exact preferred
// location hits, zero otherwise.
func locationFit(preferred []string, posting JobPosting) float64 {
	if posting.Remote {
		return 1
	}
	for _, loc := range preferred {
		if strings.EqualFold(loc, "remote") {
			continue
		}
		if strings.EqualFold(loc, posting.Location) {
			return 1
		}
	}
	return 0
}

// experienceFit gives full credit when the profile meets the requirement and
// scales down proportionally when it falls short.
func experienceFit(haveYears, requiredYears int) float64 {
	if requiredYears <= 0 || haveYears >= requiredYears {
		return 1
	}
	if haveYears < 0 {
		haveYears = 0
	}
	return float64(haveYears) / float64(requiredYears)
}

// Rank scores every posting and sorts best-first. Ties break toward the
// newer posting, then by id so the order is total.
func Rank(profile UserProfile, postings []JobPosting) []ScoredPosting {
	ranked := make([]ScoredPosting, 0, len(postings))
	for _, p := range postings {
		ranked = append(ranked, ScoredPosting{Posting: p, Score: Score(profile, p)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Posting.PostedAt.Equal(b.Posting.PostedAt) {
			return a.Posting.PostedAt.After(b.Posting.PostedAt)
		}
		return a.Posting.ID < b.Posting.ID
	})
	return ranked
}
