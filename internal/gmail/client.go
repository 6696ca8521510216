package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"slices"
	"strings"
	"sync"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/seekmail/seekmail/internal/apierr"
	"github.com/seekmail/seekmail/internal/google"
	"github.com/seekmail/seekmail/internal/logging"
	"github.com/seekmail/seekmail/internal/retry"
)

const defaultPageSize = 50

// ObserveFunc reports one upstream call for metrics. May be nil.
type ObserveFunc func(op string, d time.Duration, err error)

// Client implements Gateway over the Gmail API. It is stateless apart from
// the lazily fetched account address used for the From header.
type Client struct {
	svc     *gmail.UsersService
	logger  *slog.Logger
	observe ObserveFunc
	policy  retry.Policy

	emailMu   sync.Mutex
	userEmail string
}

var _ Gateway = (*Client)(nil)

// NewClient builds a gateway whose every request is authorized through the
// token manager.
func NewClient(ctx context.Context, tm *google.TokenManager, logger *slog.Logger, observe ObserveFunc) (*Client, error) {
	httpClient := tm.HTTPClient(ctx)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Client{
		svc:     svc.Users,
		logger:  logging.WithService(logger, "gmail"),
		observe: observe,
		policy:  retry.DefaultPolicy,
	}, nil
}

// call wraps one remote operation with the retry policy and metrics.
func call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := retry.Do(ctx, c.policy, op, fn)
	if c.observe != nil {
		c.observe(op, time.Since(start), err)
	}
	if err != nil {
		c.logger.Warn("gmail call failed", logging.Operation(op), logging.Err(err))
	}
	return v, err
}

// Send composes an RFC 2822 message and sends it, returning the message id.
func (c *Client) Send(ctx context.Context, to, subject, body string) (string, error) {
	const op = "gmail.send"
	if to == "" || subject == "" || body == "" {
		return "", apierr.New(apierr.KindValidation, op, "recipient, subject and body are required")
	}

	raw := c.buildMessage(ctx, to, subject, body)
	msg, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Message, error) {
		return c.svc.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	c.logger.Info("message sent", logging.MessageID(msg.Id), logging.Recipient(to))
	return msg.Id, nil
}

// Get fetches the full message and decodes its plain-text body.
func (c *Client) Get(ctx context.Context, id string) (*Email, error) {
	const op = "gmail.get"
	if id == "" {
		return nil, apierr.New(apierr.KindValidation, op, "message id is required")
	}
	msg, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Message, error) {
		return c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return emailFromMessage(msg, true), nil
}

// List returns one page of message summaries for the query. Summaries carry
// headers and snippet but not the body.
func (c *Client) List(ctx context.Context, query, pageToken string, maxResults int64) (*Page, error) {
	const op = "gmail.list"
	if maxResults <= 0 {
		maxResults = defaultPageSize
	}

	res, err := call(ctx, c, op, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
		req := c.svc.Messages.List("me").Q(query).MaxResults(maxResults)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		return req.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	page := &Page{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		meta, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Message, error) {
			return c.svc.Messages.Get("me", m.Id).
				Format("metadata").
				MetadataHeaders("Subject", "From", "To", "Date").
				Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		page.Messages = append(page.Messages, *emailFromMessage(meta, false))
	}
	return page, nil
}

// ModifyLabels applies one combined add/remove change and returns the
// updated message. Add and remove happen in a single remote call so no
// intermediate label state is ever observable.
func (c *Client) ModifyLabels(ctx context.Context, id string, add, remove []string) (*Email, error) {
	const op = "gmail.modify_labels"
	if id == "" {
		return nil, apierr.New(apierr.KindValidation, op, "message id is required")
	}
	msg, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Message, error) {
		return c.svc.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return emailFromMessage(msg, false), nil
}

// Trash moves the message to the trash.
func (c *Client) Trash(ctx context.Context, id string) error {
	const op = "gmail.trash"
	if id == "" {
		return apierr.New(apierr.KindValidation, op, "message id is required")
	}
	_, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Message, error) {
		return c.svc.Messages.Trash("me", id).Context(ctx).Do()
	})
	return err
}

// MarkRead clears the unread label.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := c.ModifyLabels(ctx, id, nil, []string{LabelUnread})
	return err
}

// Labels lists all labels, system and user.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	const op = "gmail.labels.list"
	res, err := call(ctx, c, op, func(ctx context.Context) (*gmail.ListLabelsResponse, error) {
		return c.svc.Labels.List("me").Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, Label{ID: l.Id, Name: l.Name, Kind: l.Type})
	}
	return labels, nil
}

// CreateLabel creates a user label visible in both label and message lists.
func (c *Client) CreateLabel(ctx context.Context, name string) (*Label, error) {
	const op = "gmail.labels.create"
	if name == "" {
		return nil, apierr.New(apierr.KindValidation, op, "label name is required")
	}
	created, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Label, error) {
		return c.svc.Labels.Create("me", &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return &Label{ID: created.Id, Name: created.Name, Kind: LabelKindUser}, nil
}

// RenameLabel renames a user label. System labels are read-only in name.
func (c *Client) RenameLabel(ctx context.Context, id, name string) (*Label, error) {
	const op = "gmail.labels.update"
	if id == "" || name == "" {
		return nil, apierr.New(apierr.KindValidation, op, "label id and name are required")
	}
	updated, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Label, error) {
		return c.svc.Labels.Update("me", id, &gmail.Label{Name: name}).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return &Label{ID: updated.Id, Name: updated.Name, Kind: updated.Type}, nil
}

// DeleteLabel removes a user label.
func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	const op = "gmail.labels.delete"
	if id == "" {
		return apierr.New(apierr.KindValidation, op, "label id is required")
	}
	return retryVoid(ctx, c, op, func(ctx context.Context) error {
		return c.svc.Labels.Delete("me", id).Context(ctx).Do()
	})
}

// CreateDraft stores a draft without sending it.
func (c *Client) CreateDraft(ctx context.Context, to, subject, body string) (string, error) {
	const op = "gmail.drafts.create"
	if to == "" || subject == "" || body == "" {
		return "", apierr.New(apierr.KindValidation, op, "recipient, subject and body are required")
	}
	raw := c.buildMessage(ctx, to, subject, body)
	draft, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Draft, error) {
		return c.svc.Drafts.Create("me", &gmail.Draft{
			Message: &gmail.Message{Raw: raw},
		}).Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return draft.Id, nil
}

// ListDrafts returns draft summaries with subject and recipient resolved.
func (c *Client) ListDrafts(ctx context.Context) ([]Draft, error) {
	const op = "gmail.drafts.list"
	res, err := call(ctx, c, op, func(ctx context.Context) (*gmail.ListDraftsResponse, error) {
		return c.svc.Drafts.List("me").Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	drafts := make([]Draft, 0, len(res.Drafts))
	for _, d := range res.Drafts {
		full, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Draft, error) {
			return c.svc.Drafts.Get("me", d.Id).Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		summary := Draft{ID: d.Id, To: "No Recipient", Subject: "No Subject"}
		if full.Message != nil && full.Message.Payload != nil {
			if v := headerValue(full.Message.Payload.Headers, "Subject"); v != "" {
				summary.Subject = v
			}
			if v := headerValue(full.Message.Payload.Headers, "To"); v != "" {
				summary.To = v
			}
		}
		drafts = append(drafts, summary)
	}
	return drafts, nil
}

// CreateFilter stores a rule server-side. SkipInbox and MarkRead have no
// native action; they travel as removals of the inbox and unread labels and
// are mapped back on read. KeepInbox is evaluation-only and never persisted.
func (c *Client) CreateFilter(ctx context.Context, criteria FilterCriteria, actions FilterActions) (*FilterRule, error) {
	const op = "gmail.filters.create"
	created, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Filter, error) {
		return c.svc.Settings.Filters.Create("me", filterToWire(criteria, actions)).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	rule := filterFromWire(created)
	return &rule, nil
}

// ListFilters returns all stored rules.
func (c *Client) ListFilters(ctx context.Context) ([]FilterRule, error) {
	const op = "gmail.filters.list"
	res, err := call(ctx, c, op, func(ctx context.Context) (*gmail.ListFiltersResponse, error) {
		return c.svc.Settings.Filters.List("me").Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	rules := make([]FilterRule, 0, len(res.Filter))
	for _, f := range res.Filter {
		rules = append(rules, filterFromWire(f))
	}
	return rules, nil
}

// GetFilter returns one stored rule.
func (c *Client) GetFilter(ctx context.Context, id string) (*FilterRule, error) {
	const op = "gmail.filters.get"
	if id == "" {
		return nil, apierr.New(apierr.KindValidation, op, "filter id is required")
	}
	f, err := call(ctx, c, op, func(ctx context.Context) (*gmail.Filter, error) {
		return c.svc.Settings.Filters.Get("me", id).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	rule := filterFromWire(f)
	return &rule, nil
}

// DeleteFilter removes a stored rule.
func (c *Client) DeleteFilter(ctx context.Context, id string) error {
	const op = "gmail.filters.delete"
	if id == "" {
		return apierr.New(apierr.KindValidation, op, "filter id is required")
	}
	return retryVoid(ctx, c, op, func(ctx context.Context) error {
		return c.svc.Settings.Filters.Delete("me", id).Context(ctx).Do()
	})
}

func filterToWire(criteria FilterCriteria, actions FilterActions) *gmail.Filter {
	removes := append([]string(nil), actions.RemoveLabelIDs...)
	if actions.SkipInbox && !slices.Contains(removes, LabelInbox) {
		removes = append(removes, LabelInbox)
	}
	if actions.MarkRead && !slices.Contains(removes, LabelUnread) {
		removes = append(removes, LabelUnread)
	}
	return &gmail.Filter{
		Criteria: &gmail.FilterCriteria{
			From:          criteria.From,
			To:            criteria.To,
			Subject:       criteria.Subject,
			Query:         criteria.Query,
			HasAttachment: criteria.HasAttachment,
		},
		Action: &gmail.FilterAction{
			AddLabelIds:    actions.AddLabelIDs,
			RemoveLabelIds: removes,
		},
	}
}

func filterFromWire(f *gmail.Filter) FilterRule {
	rule := FilterRule{ID: f.Id}
	if f.Criteria != nil {
		rule.Criteria = FilterCriteria{
			From:          f.Criteria.From,
			To:            f.Criteria.To,
			Subject:       f.Criteria.Subject,
			Query:         f.Criteria.Query,
			HasAttachment: f.Criteria.HasAttachment,
		}
	}
	if f.Action != nil {
		rule.Actions.AddLabelIDs = f.Action.AddLabelIds
		for _, id := range f.Action.RemoveLabelIds {
			switch id {
			case LabelInbox:
				rule.Actions.SkipInbox = true
			case LabelUnread:
				rule.Actions.MarkRead = true
			default:
				rule.Actions.RemoveLabelIDs = append(rule.Actions.RemoveLabelIDs, id)
			}
		}
	}
	return rule
}

// retryVoid mirrors call for operations without a result.
func retryVoid(ctx context.Context, c *Client, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := retry.DoVoid(ctx, c.policy, op, fn)
	if c.observe != nil {
		c.observe(op, time.Since(start), err)
	}
	if err != nil {
		c.logger.Warn("gmail call failed", logging.Operation(op), logging.Err(err))
	}
	return err
}

// buildMessage assembles a base64url-encoded RFC 2822 plain-text message.
func (c *Client) buildMessage(ctx context.Context, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	if from := c.accountEmail(ctx); from != "" {
		b.WriteString("From: " + from + "\r\n")
	}
	b.WriteString("Subject: " + encodeRFC2047(subject) + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

// accountEmail fetches the authenticated address once. The client is shared
// across concurrent tool invocations, so the cache is guarded. Failure is
// tolerated; the provider fills the From header itself when absent.
func (c *Client) accountEmail(ctx context.Context) string {
	c.emailMu.Lock()
	defer c.emailMu.Unlock()
	if c.userEmail != "" {
		return c.userEmail
	}
	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return ""
	}
	c.userEmail = profile.EmailAddress
	return c.userEmail
}

// encodeRFC2047 encodes a header value when it carries non-ASCII characters.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// emailFromMessage converts an API message. withBody controls MIME body
// extraction, which only full-format fetches carry.
func emailFromMessage(msg *gmail.Message, withBody bool) *Email {
	e := &Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if msg.Payload == nil {
		return e
	}

	headers := msg.Payload.Headers
	e.Subject = decodeRFC2047(headerValue(headers, "Subject"))
	e.From = headerValue(headers, "From")
	e.Date = headerValue(headers, "Date")
	if to := headerValue(headers, "To"); to != "" {
		for _, addr := range strings.Split(to, ",") {
			e.To = append(e.To, strings.TrimSpace(addr))
		}
	}

	e.HasAttachment = hasAttachment(msg.Payload)
	if withBody {
		e.Body = extractPlainText(msg.Payload)
	}
	return e
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func decodeRFC2047(s string) string {
	dec := mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// extractPlainText walks the MIME tree for the first text/plain part; a
// non-multipart message is its own body.
func extractPlainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}
	for _, p := range part.Parts {
		if body := extractPlainText(p); body != "" {
			return body
		}
	}
	return ""
}

func hasAttachment(part *gmail.MessagePart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" {
		return true
	}
	for _, p := range part.Parts {
		if hasAttachment(p) {
			return true
		}
	}
	return false
}
