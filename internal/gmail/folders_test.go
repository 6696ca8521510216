package gmail

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekmail/seekmail/internal/apierr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFoldersFixture() (*Folders, *fakeGateway) {
	gw := newFakeGateway()
	gw.addLabel(LabelInbox, "INBOX", LabelKindSystem)
	gw.addLabel(LabelStarred, "STARRED", LabelKindSystem)
	gw.addLabel("label-a", "Applications", LabelKindUser)
	gw.addLabel("label-b", "Rejections", LabelKindUser)
	return NewFolders(gw, testLogger()), gw
}

func TestMoveKeepsSingleFolderMembership(t *testing.T) {
	f, gw := newFoldersFixture()
	ctx := context.Background()
	gw.addMessage("m1", LabelInbox, LabelStarred)

	moved, err := f.Move(ctx, "m1", "label-a")
	require.NoError(t, err)
	assert.True(t, moved.HasLabel("label-a"))
	assert.True(t, moved.HasLabel(LabelInbox), "moving between folders does not archive")
	assert.True(t, moved.HasLabel(LabelStarred), "system labels survive a move")

	// A -> B -> A always converges back to exactly one folder.
	moved, err = f.Move(ctx, "m1", "label-b")
	require.NoError(t, err)
	assert.True(t, moved.HasLabel("label-b"))
	assert.False(t, moved.HasLabel("label-a"))

	moved, err = f.Move(ctx, "m1", "label-a")
	require.NoError(t, err)
	assert.True(t, moved.HasLabel("label-a"))
	assert.False(t, moved.HasLabel("label-b"))
}

func TestMoveToCurrentFolderIsNoOp(t *testing.T) {
	f, gw := newFoldersFixture()
	ctx := context.Background()
	gw.addMessage("m1", LabelInbox, "label-a")

	before := len(gw.modifyCalls)
	got, err := f.Move(ctx, "m1", "label-a")
	require.NoError(t, err)
	assert.True(t, got.HasLabel("label-a"))
	assert.Equal(t, before, len(gw.modifyCalls), "no modification issued")
}

func TestMoveRejectsUnknownFolder(t *testing.T) {
	f, gw := newFoldersFixture()
	gw.addMessage("m1", LabelInbox)

	_, err := f.Move(context.Background(), "m1", "label-nope")
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))

	// System labels are not folders.
	_, err = f.Move(context.Background(), "m1", LabelStarred)
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestArchiveIsIdempotent(t *testing.T) {
	f, gw := newFoldersFixture()
	ctx := context.Background()
	gw.addMessage("m1", LabelInbox, "label-a")

	changed, err := f.Archive(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, changed)

	msg, err := gw.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, msg.Archived())
	assert.True(t, msg.HasLabel("label-a"), "archiving does not leave the folder")

	changed, err = f.Archive(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, changed, "second archive is a no-op")
}

func TestRestorePutsMessageBackInInbox(t *testing.T) {
	f, gw := newFoldersFixture()
	ctx := context.Background()
	gw.addMessage("m1", "label-a")

	msg, err := f.Restore(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, msg.Archived())
	assert.True(t, msg.HasLabel("label-a"))
}

func TestBatchArchiveReportsPerMessageOutcomes(t *testing.T) {
	f, gw := newFoldersFixture()
	ctx := context.Background()
	gw.addMessage("m1", LabelInbox)
	gw.addMessage("m2", "label-a") // already archived
	gw.addMessage("m3", LabelInbox)
	gw.failArchiveOf = map[string]bool{"m3": true}

	results, err := f.BatchArchive(ctx, "older_than:30d")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]BatchResult{}
	for _, r := range results {
		byID[r.MessageID] = r
	}
	assert.True(t, byID["m1"].Changed)
	assert.NoError(t, byID["m1"].Err)
	assert.False(t, byID["m2"].Changed, "already archived counts as unchanged")
	assert.NoError(t, byID["m2"].Err)
	assert.Error(t, byID["m3"].Err, "one failure does not stop the batch")

	msg, err := gw.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, msg.Archived())
}

func TestBatchArchiveWalksAllPages(t *testing.T) {
	f, gw := newFoldersFixture()
	gw.pageSize = 2
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		gw.addMessage(id, LabelInbox)
	}

	results, err := f.BatchArchive(context.Background(), "in:inbox")
	require.NoError(t, err)
	assert.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Changed, "message %s", r.MessageID)
	}
}

func TestListReturnsOnlyUserLabels(t *testing.T) {
	f, _ := newFoldersFixture()
	folders, err := f.List(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 2)
	for _, l := range folders {
		assert.True(t, l.IsUser())
	}
}
