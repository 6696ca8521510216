package gmail

import (
	"context"
	"log/slog"

	"github.com/seekmail/seekmail/internal/apierr"
	"github.com/seekmail/seekmail/internal/logging"
)

// Folders presents user labels as virtual folders with a single-membership
// policy: a message sits in at most one folder at a time. System labels are
// outside the policy and never touched by a move.
type Folders struct {
	gw     Gateway
	logger *slog.Logger
}

// NewFolders builds the folder view over the given gateway.
func NewFolders(gw Gateway, logger *slog.Logger) *Folders {
	return &Folders{gw: gw, logger: logging.WithService(logger, "folders")}
}

// Create makes a new folder. The provider rejects duplicate names.
func (f *Folders) Create(ctx context.Context, name string) (*Label, error) {
	return f.gw.CreateLabel(ctx, name)
}

// List returns all folders, i.e. every user label.
func (f *Folders) List(ctx context.Context) ([]Label, error) {
	labels, err := f.gw.Labels(ctx)
	if err != nil {
		return nil, err
	}
	folders := make([]Label, 0, len(labels))
	for _, l := range labels {
		if l.IsUser() {
			folders = append(folders, l)
		}
	}
	return folders, nil
}

// Rename renames a folder in place; membership is untouched.
func (f *Folders) Rename(ctx context.Context, id, name string) (*Label, error) {
	return f.gw.RenameLabel(ctx, id, name)
}

// Delete removes a folder. Messages in it keep their other labels.
func (f *Folders) Delete(ctx context.Context, id string) error {
	return f.gw.DeleteLabel(ctx, id)
}

// Move puts the message into the target folder and out of whichever folder
// it was in. The remove set is computed from the live message so repeated
// moves always converge, and add plus removes go out as one modification so
// the message is never observable in two folders.
func (f *Folders) Move(ctx context.Context, messageID, folderID string) (*Email, error) {
	const op = "folders.move"
	if messageID == "" || folderID == "" {
		return nil, apierr.New(apierr.KindValidation, op, "message id and folder id are required")
	}

	userLabels, err := f.userLabelSet(ctx)
	if err != nil {
		return nil, err
	}
	if !userLabels[folderID] {
		return nil, apierr.New(apierr.KindNotFound, op, "no such folder: %s", folderID)
	}

	msg, err := f.gw.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var remove []string
	for _, l := range msg.LabelIDs {
		if l != folderID && userLabels[l] {
			remove = append(remove, l)
		}
	}
	if msg.HasLabel(folderID) && len(remove) == 0 {
		return msg, nil
	}

	moved, err := f.gw.ModifyLabels(ctx, messageID, []string{folderID}, remove)
	if err != nil {
		return nil, err
	}
	f.logger.Info("message moved",
		logging.MessageID(messageID), slog.String("folder_id", folderID))
	return moved, nil
}

// Archive removes the message from the inbox. Archiving an already archived
// message is a no-op; changed reports whether anything happened.
func (f *Folders) Archive(ctx context.Context, messageID string) (changed bool, err error) {
	const op = "folders.archive"
	if messageID == "" {
		return false, apierr.New(apierr.KindValidation, op, "message id is required")
	}
	msg, err := f.gw.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.Archived() {
		return false, nil
	}
	if _, err := f.gw.ModifyLabels(ctx, messageID, nil, []string{LabelInbox}); err != nil {
		return false, err
	}
	return true, nil
}

// Restore puts an archived message back in the inbox.
func (f *Folders) Restore(ctx context.Context, messageID string) (*Email, error) {
	const op = "folders.restore"
	if messageID == "" {
		return nil, apierr.New(apierr.KindValidation, op, "message id is required")
	}
	return f.gw.ModifyLabels(ctx, messageID, []string{LabelInbox}, nil)
}

// BatchResult is the per-message outcome of a batch archive.
type BatchResult struct {
	MessageID string
	Changed   bool
	Err       error
}

// Archived reports whether the message ended up archived, whether this batch
// did it or it already was.
func (r BatchResult) Archived() bool { return r.Err == nil }

// BatchArchive archives every message matching the query, walking all pages.
// Failures on individual messages do not stop the batch; each message gets
// exactly one attempt and its own outcome. Listing failures abort with what
// has been done so far.
func (f *Folders) BatchArchive(ctx context.Context, query string) ([]BatchResult, error) {
	const op = "folders.batch_archive"
	if query == "" {
		return nil, apierr.New(apierr.KindValidation, op, "query is required")
	}

	var results []BatchResult
	pageToken := ""
	for {
		page, err := f.gw.List(ctx, query, pageToken, defaultPageSize)
		if err != nil {
			return results, err
		}
		for _, msg := range page.Messages {
			changed, err := f.Archive(ctx, msg.ID)
			if err != nil {
				f.logger.Warn("batch archive: message failed",
					logging.MessageID(msg.ID), logging.Err(err))
			}
			results = append(results, BatchResult{MessageID: msg.ID, Changed: changed, Err: err})
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	f.logger.Info("batch archive complete",
		slog.Int("total", len(results)), slog.Int("failed", countFailed(results)))
	return results, nil
}

func countFailed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// userLabelSet returns the ids of all user labels.
func (f *Folders) userLabelSet(ctx context.Context) (map[string]bool, error) {
	labels, err := f.gw.Labels(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l.IsUser() {
			set[l.ID] = true
		}
	}
	return set, nil
}
