package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekmail/seekmail/internal/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock drives the scheduler from the test.
type fakeClock struct {
	now   time.Time
	ticks chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		ticks: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Ticker(time.Duration) (<-chan time.Time, func()) {
	return c.ticks, func() {}
}

func (c *fakeClock) fire() { c.ticks <- c.now }

type fakeSearcher struct {
	mu       sync.Mutex
	postings []jobs.JobPosting
	err      error
	calls    int
}

func (f *fakeSearcher) SearchAll(ctx context.Context, filters jobs.SearchFilters) ([]jobs.JobPosting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.postings, f.err
}

func (f *fakeSearcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return "msg-1", nil
}

func (f *fakeSender) deliveries() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

var testProfile = jobs.UserProfile{
	Name:               "AI/ML Engineer",
	Skills:             []string{"Python", "NLP"},
	PreferredLocations: []string{"Remote"},
}

func newScheduler(searcher Searcher, sender Sender) (*Scheduler, *fakeClock) {
	s := New(Config{Profile: testProfile, To: "me@example.com"}, searcher, sender, testLogger())
	clock := newFakeClock()
	s.clock = clock
	return s, clock
}

func TestRunCycleDeliversRankedDigest(t *testing.T) {
	searcher := &fakeSearcher{postings: []jobs.JobPosting{
		{ID: "weak", Title: "COBOL Dev", Company: "OldCo", RequiredSkills: []string{"COBOL"}, Location: "Tokyo"},
		{ID: "strong", Title: "NLP Engineer", Company: "Acme", RequiredSkills: []string{"Python"}, Remote: true, Location: "Remote"},
	}}
	sender := &fakeSender{}
	s, _ := newScheduler(searcher, sender)

	require.NoError(t, s.RunCycle(context.Background()))

	sent := sender.deliveries()
	require.Len(t, sent, 1)
	assert.Equal(t, "me@example.com", sent[0].to)
	assert.Contains(t, sent[0].subject, "2 matching postings")
	// Ranked best-first in the body.
	assert.Less(t,
		strings.Index(sent[0].body, "NLP Engineer"),
		strings.Index(sent[0].body, "COBOL Dev"))
}

func TestRunCycleTruncatesToTopN(t *testing.T) {
	var postings []jobs.JobPosting
	for i := 0; i < 25; i++ {
		postings = append(postings, jobs.JobPosting{ID: string(rune('a' + i)), Title: "Engineer", Company: "Acme"})
	}
	sender := &fakeSender{}
	s, _ := newScheduler(&fakeSearcher{postings: postings}, sender)

	require.NoError(t, s.RunCycle(context.Background()))
	sent := sender.deliveries()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].subject, "10 matching postings")
}

func TestRunCycleEmptySearchStillDelivers(t *testing.T) {
	sender := &fakeSender{}
	s, _ := newScheduler(&fakeSearcher{}, sender)

	require.NoError(t, s.RunCycle(context.Background()))
	sent := sender.deliveries()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].body, "No new postings")
}

func TestFailedCycleIsSkippedNotRetried(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("provider down")}
	sender := &fakeSender{}
	s, clock := newScheduler(searcher, sender)

	var mu sync.Mutex
	var outcomes []bool
	s.OnCycle = func(ok bool) {
		mu.Lock()
		outcomes = append(outcomes, ok)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// First firing fails and is skipped.
	clock.fire()
	// The searcher recovers; the next firing proceeds independently.
	searcher.setErr(nil)
	clock.fire()

	cancel()
	<-done

	assert.Equal(t, 2, searcher.callCount(), "no mid-cycle retry")
	require.Len(t, sender.deliveries(), 1)
	mu.Lock()
	assert.Equal(t, []bool{false, true}, outcomes)
	mu.Unlock()
}

func TestSendFailureSkipsCycle(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	s, _ := newScheduler(&fakeSearcher{}, sender)

	err := s.RunCycle(context.Background())
	require.Error(t, err)
	assert.Empty(t, sender.deliveries())
}

func TestComposeIsDeterministic(t *testing.T) {
	report := &jobs.DigestReport{
		GeneratedAt: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		Profile:     "AI/ML Engineer",
		Postings: []jobs.ScoredPosting{
			{Posting: jobs.JobPosting{Title: "NLP Engineer", Company: "Acme", Location: "Berlin", URL: "https://x.test/1",
				RequiredSkills: []string{"Python", "NLP"}, PostedAt: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)}, Score: 1},
		},
	}
	s1, b1 := Compose(report)
	s2, b2 := Compose(report)
	assert.Equal(t, s1, s2)
	assert.Equal(t, b1, b2)
	assert.Contains(t, b1, "skills: Python, NLP")
	assert.Contains(t, b1, "posted 2026-08-25")
}
