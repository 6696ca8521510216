package digest

import (
	"context"
	"log/slog"
	"time"

	"github.com/seekmail/seekmail/internal/jobs"
	"github.com/seekmail/seekmail/internal/logging"
)

// DefaultInterval is how often a digest goes out unless configured otherwise.
const DefaultInterval = 24 * time.Hour

// Searcher is the posting-search surface the scheduler consumes.
type Searcher interface {
	SearchAll(ctx context.Context, filters jobs.SearchFilters) ([]jobs.JobPosting, error)
}

// Sender delivers the composed digest mail.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// Clock abstracts time for the scheduler so tests can drive cycles directly.
type Clock interface {
	Now() time.Time
	// Ticker returns a tick channel and its stop function.
	Ticker(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Config holds the scheduler's immutable setup. The profile is a value; no
// cycle observes a mutation.
type Config struct {
	Profile  jobs.UserProfile
	To       string // destination address
	Interval time.Duration
	TopN     int // postings per digest, 0 means defaultTopN
}

const defaultTopN = 10

// Scheduler emails a ranked digest of fresh postings on a fixed interval.
// Cycles are independent: a failed cycle is logged and skipped, never
// retried, and never delays the next firing.
type Scheduler struct {
	cfg      Config
	searcher Searcher
	sender   Sender
	logger   *slog.Logger
	clock    Clock

	// OnCycle, when set, observes cycle outcomes (for metrics).
	OnCycle func(ok bool)
}

// New builds a scheduler. Interval and TopN fall back to defaults when zero.
func New(cfg Config, searcher Searcher, sender Sender, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	return &Scheduler{
		cfg:      cfg,
		searcher: searcher,
		sender:   sender,
		logger:   logging.WithService(logger, "digest"),
		clock:    realClock{},
	}
}

// Run fires cycles until the context ends. It blocks; callers run it on its
// own goroutine so tool handling is never held up by a digest.
func (s *Scheduler) Run(ctx context.Context) {
	ticks, stop := s.clock.Ticker(s.cfg.Interval)
	defer stop()

	s.logger.Info("digest scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		logging.Recipient(s.cfg.To))

	var cycle uint64
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("digest scheduler stopped")
			return
		case <-ticks:
			cycle++
			if err := s.RunCycle(ctx); err != nil {
				// Skip, do not retry; the next firing starts clean.
				s.logger.Warn("digest cycle skipped",
					logging.Cycle(cycle), logging.Err(err))
			}
		}
	}
}

// RunCycle performs one search-score-compose-send pass. Exported for the
// manual digest tool and CLI subcommand.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	start := s.clock.Now()

	report, err := s.buildReport(ctx)
	if err == nil {
		err = s.deliver(ctx, report)
	}

	if s.OnCycle != nil {
		s.OnCycle(err == nil)
	}
	if err != nil {
		return err
	}
	s.logger.Info("digest delivered",
		logging.Recipient(s.cfg.To),
		slog.Int("postings", len(report.Postings)),
		logging.Duration(s.clock.Now().Sub(start)))
	return nil
}

func (s *Scheduler) buildReport(ctx context.Context) (*jobs.DigestReport, error) {
	postings, err := s.searcher.SearchAll(ctx, s.cfg.Profile.DerivedFilters())
	if err != nil {
		return nil, err
	}

	ranked := jobs.Rank(s.cfg.Profile, postings)
	if len(ranked) > s.cfg.TopN {
		ranked = ranked[:s.cfg.TopN]
	}
	return &jobs.DigestReport{
		GeneratedAt: s.clock.Now(),
		Profile:     s.cfg.Profile.Name,
		Postings:    ranked,
	}, nil
}

func (s *Scheduler) deliver(ctx context.Context, report *jobs.DigestReport) error {
	subject, body := Compose(report)
	_, err := s.sender.Send(ctx, s.cfg.To, subject, body)
	return err
}
