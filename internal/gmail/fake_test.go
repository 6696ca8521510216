package gmail

import (
	"context"
	"fmt"
	"sort"

	"github.com/seekmail/seekmail/internal/apierr"
)

// fakeGateway is an in-memory Gateway for exercising folder and filter logic
// without the remote API. Behavior mirrors the provider: unknown ids are
// not_found, label modifications are applied atomically.
type fakeGateway struct {
	messages map[string]*Email
	labels   map[string]Label
	filters  map[string]FilterRule
	drafts   []Draft

	nextID   int
	pageSize int

	// failArchiveOf makes ModifyLabels fail for the given message ids.
	failArchiveOf map[string]bool

	modifyCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		messages: map[string]*Email{},
		labels:   map[string]Label{},
		filters:  map[string]FilterRule{},
		pageSize: defaultPageSize,
	}
}

func (f *fakeGateway) addLabel(id, name, kind string) {
	f.labels[id] = Label{ID: id, Name: name, Kind: kind}
}

func (f *fakeGateway) addMessage(id string, labelIDs ...string) *Email {
	e := &Email{ID: id, LabelIDs: labelIDs}
	f.messages[id] = e
	return e
}

func (f *fakeGateway) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeGateway) Send(ctx context.Context, to, subject, body string) (string, error) {
	id := f.genID("msg")
	f.messages[id] = &Email{ID: id, To: []string{to}, Subject: subject, Body: body, LabelIDs: []string{LabelSent}}
	return id, nil
}

func (f *fakeGateway) Get(ctx context.Context, id string) (*Email, error) {
	e, ok := f.messages[id]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "fake.get", "no such message: %s", id)
	}
	cp := *e
	cp.LabelIDs = append([]string(nil), e.LabelIDs...)
	return &cp, nil
}

func (f *fakeGateway) List(ctx context.Context, query, pageToken string, maxResults int64) (*Page, error) {
	ids := make([]string, 0, len(f.messages))
	for id := range f.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &start)
	}
	end := start + f.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	page := &Page{}
	for _, id := range ids[start:end] {
		page.Messages = append(page.Messages, *f.messages[id])
	}
	if end < len(ids) {
		page.NextPageToken = fmt.Sprintf("page-%d", end)
	}
	return page, nil
}

func (f *fakeGateway) ModifyLabels(ctx context.Context, id string, add, remove []string) (*Email, error) {
	f.modifyCalls = append(f.modifyCalls, id)
	if f.failArchiveOf[id] {
		return nil, apierr.New(apierr.KindTransient, "fake.modify", "injected failure")
	}
	e, ok := f.messages[id]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "fake.modify", "no such message: %s", id)
	}

	next := map[string]bool{}
	for _, l := range e.LabelIDs {
		next[l] = true
	}
	for _, l := range add {
		next[l] = true
	}
	for _, l := range remove {
		delete(next, l)
	}
	e.LabelIDs = e.LabelIDs[:0]
	for l := range next {
		e.LabelIDs = append(e.LabelIDs, l)
	}
	sort.Strings(e.LabelIDs)
	return f.Get(ctx, id)
}

func (f *fakeGateway) Trash(ctx context.Context, id string) error {
	_, err := f.ModifyLabels(ctx, id, []string{LabelTrash}, []string{LabelInbox})
	return err
}

func (f *fakeGateway) MarkRead(ctx context.Context, id string) error {
	_, err := f.ModifyLabels(ctx, id, nil, []string{LabelUnread})
	return err
}

func (f *fakeGateway) Labels(ctx context.Context) ([]Label, error) {
	out := make([]Label, 0, len(f.labels))
	for _, l := range f.labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGateway) CreateLabel(ctx context.Context, name string) (*Label, error) {
	for _, l := range f.labels {
		if l.Name == name {
			return nil, apierr.New(apierr.KindValidation, "fake.labels.create", "label exists: %s", name)
		}
	}
	l := Label{ID: f.genID("label"), Name: name, Kind: LabelKindUser}
	f.labels[l.ID] = l
	return &l, nil
}

func (f *fakeGateway) RenameLabel(ctx context.Context, id, name string) (*Label, error) {
	l, ok := f.labels[id]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "fake.labels.update", "no such label: %s", id)
	}
	l.Name = name
	f.labels[id] = l
	return &l, nil
}

func (f *fakeGateway) DeleteLabel(ctx context.Context, id string) error {
	if _, ok := f.labels[id]; !ok {
		return apierr.New(apierr.KindNotFound, "fake.labels.delete", "no such label: %s", id)
	}
	delete(f.labels, id)
	return nil
}

func (f *fakeGateway) CreateDraft(ctx context.Context, to, subject, body string) (string, error) {
	d := Draft{ID: f.genID("draft"), To: to, Subject: subject}
	f.drafts = append(f.drafts, d)
	return d.ID, nil
}

func (f *fakeGateway) ListDrafts(ctx context.Context) ([]Draft, error) {
	return append([]Draft(nil), f.drafts...), nil
}

func (f *fakeGateway) CreateFilter(ctx context.Context, criteria FilterCriteria, actions FilterActions) (*FilterRule, error) {
	r := FilterRule{ID: f.genID("filter"), Criteria: criteria, Actions: actions}
	f.filters[r.ID] = r
	return &r, nil
}

func (f *fakeGateway) ListFilters(ctx context.Context) ([]FilterRule, error) {
	out := make([]FilterRule, 0, len(f.filters))
	for _, r := range f.filters {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGateway) GetFilter(ctx context.Context, id string) (*FilterRule, error) {
	r, ok := f.filters[id]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "fake.filters.get", "no such filter: %s", id)
	}
	return &r, nil
}

func (f *fakeGateway) DeleteFilter(ctx context.Context, id string) error {
	if _, ok := f.filters[id]; !ok {
		return apierr.New(apierr.KindNotFound, "fake.filters.delete", "no such filter: %s", id)
	}
	delete(f.filters, id)
	return nil
}

var _ Gateway = (*fakeGateway)(nil)
