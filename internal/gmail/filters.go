package gmail

import (
	"context"
	"log/slog"
	"sort"

	"github.com/seekmail/seekmail/internal/apierr"
	"github.com/seekmail/seekmail/internal/logging"
)

// FilterCriteria describes which messages a rule matches. Zero-valued fields
// do not constrain the match; set fields are combined with AND.
type FilterCriteria struct {
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Query         string `json:"query,omitempty"`
	HasAttachment bool   `json:"has_attachment,omitempty"`
}

// Empty reports whether the criteria constrain nothing. Such a rule would
// match every message and is rejected.
func (c FilterCriteria) Empty() bool {
	return c.From == "" && c.To == "" && c.Subject == "" && c.Query == "" && !c.HasAttachment
}

// Matches evaluates the criteria against a message. The free-text query is
// matched against subject, snippet and body; the provider applies its full
// search grammar server-side, this is the local approximation used when
// previewing rule effects.
func (c FilterCriteria) Matches(e *Email) bool {
	if c.From != "" && !containsFold(e.From, c.From) {
		return false
	}
	if c.To != "" && !matchesAnyFold(e.To, c.To) {
		return false
	}
	if c.Subject != "" && !containsFold(e.Subject, c.Subject) {
		return false
	}
	if c.HasAttachment && !e.HasAttachment {
		return false
	}
	if c.Query != "" &&
		!containsFold(e.Subject, c.Query) &&
		!containsFold(e.Snippet, c.Query) &&
		!containsFold(e.Body, c.Query) {
		return false
	}
	return true
}

func matchesAnyFold(haystacks []string, needle string) bool {
	for _, h := range haystacks {
		if containsFold(h, needle) {
			return true
		}
	}
	return false
}

// FilterActions describes what a rule does to a matched message. SkipInbox
// and KeepInbox are mutually exclusive; KeepInbox exists only to override an
// earlier rule's SkipInbox during evaluation and has no wire representation.
type FilterActions struct {
	AddLabelIDs    []string `json:"add_label_ids,omitempty"`
	RemoveLabelIDs []string `json:"remove_label_ids,omitempty"`
	SkipInbox      bool     `json:"skip_inbox,omitempty"`
	KeepInbox      bool     `json:"keep_inbox,omitempty"`
	MarkRead       bool     `json:"mark_read,omitempty"`
}

// Empty reports whether the actions do nothing.
func (a FilterActions) Empty() bool {
	return len(a.AddLabelIDs) == 0 && len(a.RemoveLabelIDs) == 0 &&
		!a.SkipInbox && !a.KeepInbox && !a.MarkRead
}

// FilterRule pairs criteria with actions under a provider-assigned id.
type FilterRule struct {
	ID       string         `json:"id"`
	Criteria FilterCriteria `json:"criteria"`
	Actions  FilterActions  `json:"actions"`
}

// Outcome is the net effect of running all rules against one message.
type Outcome struct {
	Matched  []string // ids of rules that matched, in rule order
	LabelIDs []string // final label set
	Skipped  bool     // message left the inbox
	MarkRead bool
}

// Engine manages filter rules and evaluates their combined effect. Rule
// storage is remote; evaluation is local and pure.
type Engine struct {
	gw     Gateway
	logger *slog.Logger
}

// NewEngine builds a filter engine over the given gateway.
func NewEngine(gw Gateway, logger *slog.Logger) *Engine {
	return &Engine{gw: gw, logger: logging.WithService(logger, "filters")}
}

// Create validates and stores a new rule.
func (e *Engine) Create(ctx context.Context, criteria FilterCriteria, actions FilterActions) (*FilterRule, error) {
	const op = "filters.create"
	if criteria.Empty() {
		return nil, apierr.New(apierr.KindValidation, op, "filter criteria must constrain at least one field")
	}
	if actions.Empty() {
		return nil, apierr.New(apierr.KindValidation, op, "filter must have at least one action")
	}
	if actions.SkipInbox && actions.KeepInbox {
		return nil, apierr.New(apierr.KindValidation, op, "skip_inbox and keep_inbox are mutually exclusive")
	}
	rule, err := e.gw.CreateFilter(ctx, criteria, actions)
	if err != nil {
		return nil, err
	}
	e.logger.Info("filter created", slog.String("filter_id", rule.ID))
	return rule, nil
}

// List returns all stored rules.
func (e *Engine) List(ctx context.Context) ([]FilterRule, error) {
	return e.gw.ListFilters(ctx)
}

// Get returns one rule by id.
func (e *Engine) Get(ctx context.Context, id string) (*FilterRule, error) {
	const op = "filters.get"
	if id == "" {
		return nil, apierr.New(apierr.KindValidation, op, "filter id is required")
	}
	return e.gw.GetFilter(ctx, id)
}

// Update replaces a rule. The provider has no in-place update, so the new
// rule is created before the old one is deleted; a crash between the two
// leaves a duplicate, never a lost rule. The returned rule carries a new id.
func (e *Engine) Update(ctx context.Context, id string, criteria FilterCriteria, actions FilterActions) (*FilterRule, error) {
	const op = "filters.update"
	if id == "" {
		return nil, apierr.New(apierr.KindValidation, op, "filter id is required")
	}
	// Fail early on an unknown id so validation errors on the new rule
	// cannot mask a not_found.
	if _, err := e.gw.GetFilter(ctx, id); err != nil {
		return nil, err
	}

	created, err := e.Create(ctx, criteria, actions)
	if err != nil {
		return nil, err
	}
	if err := e.gw.DeleteFilter(ctx, id); err != nil {
		e.logger.Warn("old filter left behind after update",
			slog.String("filter_id", id), logging.Err(err))
		return created, apierr.Wrap(apierr.KindOf(err), op, err)
	}
	e.logger.Info("filter updated",
		slog.String("old_id", id), slog.String("filter_id", created.ID))
	return created, nil
}

// Delete removes a rule by id.
func (e *Engine) Delete(ctx context.Context, id string) error {
	const op = "filters.delete"
	if id == "" {
		return apierr.New(apierr.KindValidation, op, "filter id is required")
	}
	if err := e.gw.DeleteFilter(ctx, id); err != nil {
		return err
	}
	e.logger.Info("filter deleted", slog.String("filter_id", id))
	return nil
}

// Evaluate computes the net effect of the rules on one message without
// touching the provider. Label adds and removes union across all matching
// rules, with adds winning any add/remove conflict. The inbox decision is
// positional: the last matching rule that states skip or keep wins.
func Evaluate(rules []FilterRule, e *Email) Outcome {
	out := Outcome{}

	adds := map[string]bool{}
	removes := map[string]bool{}
	skipDecided := false
	skip := false

	for _, r := range rules {
		if !r.Criteria.Matches(e) {
			continue
		}
		out.Matched = append(out.Matched, r.ID)
		for _, id := range r.Actions.AddLabelIDs {
			adds[id] = true
		}
		for _, id := range r.Actions.RemoveLabelIDs {
			removes[id] = true
		}
		if r.Actions.SkipInbox {
			skipDecided, skip = true, true
		}
		if r.Actions.KeepInbox {
			skipDecided, skip = true, false
		}
		if r.Actions.MarkRead {
			out.MarkRead = true
		}
	}

	if skipDecided && skip {
		removes[LabelInbox] = true
		out.Skipped = true
	} else {
		// An explicit keep, or no decision at all, shields the inbox label
		// from any rule's remove set.
		delete(removes, LabelInbox)
	}
	if out.MarkRead {
		removes[LabelUnread] = true
	}

	final := map[string]bool{}
	for _, id := range e.LabelIDs {
		final[id] = true
	}
	for id := range adds {
		final[id] = true
	}
	for id := range removes {
		if !adds[id] {
			delete(final, id)
		}
	}
	if out.Skipped {
		// Skip always evicts the inbox label, even when another rule adds it.
		delete(final, LabelInbox)
	}

	out.LabelIDs = sortedKeys(final)
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
