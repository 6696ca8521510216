package gmail

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestEncodeRFC2047(t *testing.T) {
	assert.Equal(t, "plain ascii", encodeRFC2047("plain ascii"))
	assert.Equal(t, "=?UTF-8?b?R3LDvMOfZQ==?=", encodeRFC2047("Grüße"))
}

func TestExtractPlainTextWalksMultipart(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

	multipart := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<b>hi</b>")}},
			{MimeType: "text/plain; charset=UTF-8", Body: &gmail.MessagePartBody{Data: enc("hi")}},
		},
	}
	assert.Equal(t, "hi", extractPlainText(multipart))

	simple := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: enc("body text")},
	}
	assert.Equal(t, "body text", extractPlainText(simple))

	htmlOnly := &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: enc("<b>hi</b>")},
	}
	assert.Equal(t, "", extractPlainText(htmlOnly))
}

func TestEmailFromMessageParsesHeaders(t *testing.T) {
	msg := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Snippet:  "snippet",
		LabelIds: []string{LabelInbox, LabelUnread},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "=?UTF-8?b?R3LDvMOfZQ==?="},
				{Name: "From", Value: "a@example.com"},
				{Name: "To", Value: "b@example.com, c@example.com"},
				{Name: "Date", Value: "Mon, 24 Aug 2026 10:00:00 +0000"},
			},
			Parts: []*gmail.MessagePart{
				{Filename: "cv.pdf", MimeType: "application/pdf"},
			},
		},
	}

	e := emailFromMessage(msg, false)
	assert.Equal(t, "Grüße", e.Subject)
	assert.Equal(t, []string{"b@example.com", "c@example.com"}, e.To)
	assert.True(t, e.HasAttachment)
	assert.True(t, e.Unread())
	assert.False(t, e.Archived())
}

func TestAccountEmailSafeUnderConcurrentSends(t *testing.T) {
	var profileCalls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profileCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"emailAddress": "me@example.com"}`))
	}))
	defer ts.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	c := &Client{
		svc:    svc.Users,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	const callers = 8
	var wg sync.WaitGroup
	got := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = c.accountEmail(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.Equal(t, "me@example.com", got[i])
	}
	assert.EqualValues(t, 1, profileCalls.Load(), "the address is fetched once and cached")
}

func TestFilterWireRoundTrip(t *testing.T) {
	criteria := FilterCriteria{From: "jobs@example.com", HasAttachment: true}
	actions := FilterActions{
		AddLabelIDs:    []string{"AutoLabel"},
		RemoveLabelIDs: []string{"Old"},
		SkipInbox:      true,
		MarkRead:       true,
	}

	wire := filterToWire(criteria, actions)
	assert.Contains(t, wire.Action.RemoveLabelIds, LabelInbox)
	assert.Contains(t, wire.Action.RemoveLabelIds, LabelUnread)

	wire.Id = "f1"
	back := filterFromWire(wire)
	assert.Equal(t, criteria, back.Criteria)
	assert.Equal(t, actions, back.Actions)
}
