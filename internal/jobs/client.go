package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seekmail/seekmail/internal/apierr"
	"github.com/seekmail/seekmail/internal/logging"
	"github.com/seekmail/seekmail/internal/retry"
)

// DefaultBaseURL is the production postings endpoint.
const DefaultBaseURL = "https://api.theirstack.com"

const defaultPageSize = 50

// Config wires the postings client to its provider.
type Config struct {
	BaseURL string
	APIKey  string
}

// LoadConfig reads the provider config from a JSON key file of the shape
// {"api_key": "..."}.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read jobs config: %w", err)
	}
	var raw struct {
		APIKey  string `json:"api_key"`
		BaseURL string `json:"base_url,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse jobs config %s: %w", path, err)
	}
	if raw.APIKey == "" {
		return Config{}, fmt.Errorf("jobs config %s has no api_key", path)
	}
	cfg := Config{BaseURL: raw.BaseURL, APIKey: raw.APIKey}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return cfg, nil
}

// ObserveFunc reports one upstream call for metrics. May be nil.
type ObserveFunc func(op string, d time.Duration, err error)

// Client talks to the postings provider with the shared retry policy.
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	observe ObserveFunc
	policy  retry.Policy
}

// NewClient builds a postings client. A nil httpClient uses the default.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger, observe ObserveFunc) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  logging.WithService(logger, "jobs"),
		observe: observe,
		policy:  retry.DefaultPolicy,
	}
}

// searchRequest is the provider's search body.
type searchRequest struct {
	IncludeTotalResults  bool          `json:"include_total_results"`
	OrderBy              []orderClause `json:"order_by"`
	PostedAtMaxAgeDays   int           `json:"posted_at_max_age_days"`
	JobTitleOr           []string      `json:"job_title_or,omitempty"`
	JobLocationPatternOr []string      `json:"job_location_pattern_or,omitempty"`
	JobCountryCodeOr     []string      `json:"job_country_code_or,omitempty"`
	Page                 int           `json:"page"`
	Limit                int           `json:"limit"`
	BlurCompanyData      bool          `json:"blur_company_data"`
}

type orderClause struct {
	Desc  bool   `json:"desc"`
	Field string `json:"field"`
}

type searchResponse struct {
	Metadata struct {
		TotalResults int `json:"total_results"`
	} `json:"metadata"`
	Data []wireJob `json:"data"`
}

type wireJob struct {
	ID           json.Number `json:"id"`
	JobTitle     string      `json:"job_title"`
	URL          string      `json:"url"`
	DatePosted   string      `json:"date_posted"`
	Location     string      `json:"location"`
	Remote       bool        `json:"remote"`
	Hybrid       bool        `json:"hybrid"`
	SalaryString string      `json:"salary_string"`
	Seniority    string      `json:"seniority"`
	Description  string      `json:"description"`
	Company      struct {
		Name string `json:"name"`
	} `json:"company"`
}

// Search returns a lazy sequence over all postings matching the filters.
// Pages are fetched on demand as the caller advances; the sequence is finite
// and cannot be restarted.
func (c *Client) Search(ctx context.Context, filters SearchFilters) *SearchIter {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &SearchIter{c: c, ctx: ctx, filters: filters, pageSize: pageSize}
}

// SearchAll drains a search into a slice, honoring filters.MaxResults.
func (c *Client) SearchAll(ctx context.Context, filters SearchFilters) ([]JobPosting, error) {
	it := c.Search(ctx, filters)
	var out []JobPosting
	for it.Next() {
		out = append(out, it.Posting())
	}
	return out, it.Err()
}

// SearchIter walks a paginated search one posting at a time, in the style of
// bufio.Scanner: Next advances, Posting reads, Err reports the terminal
// failure if any.
type SearchIter struct {
	c        *Client
	ctx      context.Context
	filters  SearchFilters
	pageSize int

	page     int
	buf      []JobPosting
	pos      int
	cur      JobPosting
	yielded  int
	done     bool
	err      error
}

// Next advances to the next posting. It returns false when the sequence is
// exhausted or a fetch failed; check Err to tell the two apart.
func (it *SearchIter) Next() bool {
	if it.err != nil || it.exhausted() {
		return false
	}
	if it.pos >= len(it.buf) {
		if it.done || !it.fetchPage() {
			return false
		}
	}
	it.cur = it.buf[it.pos]
	it.pos++
	it.yielded++
	return true
}

// Posting returns the posting Next advanced to.
func (it *SearchIter) Posting() JobPosting { return it.cur }

// Err returns the failure that terminated the sequence, nil on clean
// exhaustion.
func (it *SearchIter) Err() error { return it.err }

func (it *SearchIter) exhausted() bool {
	return it.filters.MaxResults > 0 && it.yielded >= it.filters.MaxResults
}

func (it *SearchIter) fetchPage() bool {
	postings, err := it.c.searchPage(it.ctx, it.filters, it.page, it.pageSize)
	if err != nil {
		it.err = err
		return false
	}
	it.page++
	it.buf = postings
	it.pos = 0
	if len(postings) < it.pageSize {
		// A short page is the last page.
		it.done = true
	}
	return len(postings) > 0
}

// searchPage fetches one page through the retry policy.
func (c *Client) searchPage(ctx context.Context, filters SearchFilters, page, limit int) ([]JobPosting, error) {
	const op = "jobs.search"

	maxAge := filters.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}
	body := searchRequest{
		OrderBy:              []orderClause{{Desc: true, Field: "date_posted"}},
		PostedAtMaxAgeDays:   maxAge,
		JobTitleOr:           filters.TitleKeywords,
		JobLocationPatternOr: filters.Locations,
		JobCountryCodeOr:     filters.CountryCodes,
		Page:                 page,
		Limit:                limit,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, op, err)
	}

	start := time.Now()
	res, err := retry.Do(ctx, c.policy, op, func(ctx context.Context) (*searchResponse, error) {
		return c.doSearch(ctx, payload)
	})
	if c.observe != nil {
		c.observe(op, time.Since(start), err)
	}
	if err != nil {
		c.logger.Warn("posting search failed",
			logging.Operation(op), slog.Int("page", page), logging.Err(err))
		return nil, err
	}

	postings := make([]JobPosting, 0, len(res.Data))
	for _, w := range res.Data {
		postings = append(postings, postingFromWire(w, filters.SkillKeywords))
	}
	c.logger.Debug("postings page fetched",
		logging.Operation(op), slog.Int("page", page), slog.Int("count", len(postings)))
	return postings, nil
}

func (c *Client) doSearch(ctx context.Context, payload []byte) (*searchResponse, error) {
	const op = "jobs.search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/jobs/search", bytes.NewReader(payload))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var kind apierr.Kind
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			kind = apierr.KindReauthRequired
		case resp.StatusCode == http.StatusForbidden:
			kind = apierr.KindPermissionDenied
		case resp.StatusCode == http.StatusNotFound:
			kind = apierr.KindNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			kind = apierr.KindQuotaExceeded
		case resp.StatusCode >= 500:
			kind = apierr.KindTransient
		default:
			kind = apierr.KindValidation
		}
		return nil, apierr.New(kind, op, "provider returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, op, err)
	}
	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, op, fmt.Errorf("malformed provider response: %w", err))
	}
	return &out, nil
}

var yearsPattern = regexp.MustCompile(`(?i)(\d{1,2})\s*\+?\s*years?`)

// postingFromWire maps a provider job and tags its required skills by
// scanning title and description against the search vocabulary.
func postingFromWire(w wireJob, vocabulary []string) JobPosting {
	p := JobPosting{
		ID:          w.ID.String(),
		Title:       w.JobTitle,
		Company:     w.Company.Name,
		Location:    w.Location,
		Remote:      w.Remote,
		Description: w.Description,
		URL:         w.URL,
		Salary:      w.SalaryString,
		Seniority:   w.Seniority,
	}
	if t, err := time.Parse("2006-01-02", w.DatePosted); err == nil {
		p.PostedAt = t
	}
	if p.Location == "" && w.Remote {
		p.Location = "Remote"
	}

	text := strings.ToLower(w.JobTitle + " " + w.Description)
	for _, skill := range vocabulary {
		if skill != "" && strings.Contains(text, strings.ToLower(skill)) {
			p.RequiredSkills = append(p.RequiredSkills, skill)
		}
	}
	if m := yearsPattern.FindStringSubmatch(w.Description); m != nil {
		if years, err := strconv.Atoi(m[1]); err == nil {
			p.RequiredYears = years
		}
	}
	return p
}
