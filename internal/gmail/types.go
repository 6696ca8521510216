package gmail

import (
	"context"
	"strings"
)

// Well-known system label ids. System labels are fixed in name but may still
// be added to or removed from messages.
const (
	LabelInbox   = "INBOX"
	LabelUnread  = "UNREAD"
	LabelTrash   = "TRASH"
	LabelSent    = "SENT"
	LabelDraft   = "DRAFT"
	LabelSpam    = "SPAM"
	LabelStarred = "STARRED"
)

// Label kinds as reported by the provider.
const (
	LabelKindSystem = "system"
	LabelKindUser   = "user"
)

// Email is a live view of a message. It is fetched per operation and never
// cached; the id is immutable, the label set mutates only through gateway
// calls.
type Email struct {
	ID            string
	ThreadID      string
	From          string
	To            []string
	Subject       string
	Date          string
	Snippet       string
	Body          string
	LabelIDs      []string
	HasAttachment bool
}

// HasLabel reports whether the message carries the given label id.
func (e *Email) HasLabel(id string) bool {
	for _, l := range e.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// Unread derives the read flag from label membership.
func (e *Email) Unread() bool { return e.HasLabel(LabelUnread) }

// Archived derives the archive flag from the absence of the inbox label.
func (e *Email) Archived() bool { return !e.HasLabel(LabelInbox) }

// Label is a provider label; user labels double as virtual folders.
type Label struct {
	ID   string
	Name string
	Kind string
}

// IsUser reports whether the label is user-defined and thus folder-eligible.
func (l Label) IsUser() bool { return l.Kind == LabelKindUser }

// Draft is a summary of a stored draft message.
type Draft struct {
	ID      string
	To      string
	Subject string
}

// Page is one page of message summaries with the continuation token, empty
// when the listing is exhausted.
type Page struct {
	Messages      []Email
	NextPageToken string
}

// Gateway is the narrow mail surface the rest of seekmail consumes. The
// concrete implementation talks to the Gmail API with the shared retry
// policy; tests substitute fakes.
type Gateway interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
	Get(ctx context.Context, id string) (*Email, error)
	List(ctx context.Context, query, pageToken string, maxResults int64) (*Page, error)
	ModifyLabels(ctx context.Context, id string, add, remove []string) (*Email, error)
	Trash(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error

	Labels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (*Label, error)
	RenameLabel(ctx context.Context, id, name string) (*Label, error)
	DeleteLabel(ctx context.Context, id string) error

	CreateDraft(ctx context.Context, to, subject, body string) (string, error)
	ListDrafts(ctx context.Context) ([]Draft, error)

	CreateFilter(ctx context.Context, criteria FilterCriteria, actions FilterActions) (*FilterRule, error)
	ListFilters(ctx context.Context) ([]FilterRule, error)
	GetFilter(ctx context.Context, id string) (*FilterRule, error)
	DeleteFilter(ctx context.Context, id string) error
}

// PermalinkURL returns the Gmail web URL for a message.
func PermalinkURL(id string) string {
	return "https://mail.google.com/mail/#all/" + id
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
