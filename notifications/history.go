package notifications

import (
	"context"
	"time"

	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
)

// DedupWindow is how long a sent notice suppresses the same notice
const DedupWindow = 24 * time.Hour

// History records notification attempts and answers duplicate checks
type History struct {
	DB  databases.NotificationHistoryDatabase
	Now func() time.Time
}

// NewHistory returns a History over the record store
func NewHistory(store databases.RecordStore) *History {
	return &History{DB: databases.NewNotificationHistoryDatabase(store), Now: time.Now}
}

// HasRecentDuplicate reports whether the same notice was sent to the
// recipient for the document within window
func (h *History) HasRecentDuplicate(ctx context.Context, recipientID, documentID, notificationType string, window time.Duration) (bool, error) {
	since := h.Now().Add(-window)
	entries, err := h.DB.FindSentSince(ctx, recipientID, documentID, notificationType, since)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Record stores the outcome of a send attempt
func (h *History) Record(ctx context.Context, to Recipient, msg Message, sendErr error) error {
	entry := models.NotificationHistory{
		RecipientID:      to.ID,
		NotificationType: msg.Type,
		DocumentType:     msg.DocumentType,
		DocumentID:       msg.DocumentID,
		SentAt:           h.Now().UTC(),
		Status:           models.NotificationSent,
	}
	if sendErr != nil {
		entry.Status = models.NotificationFailed
		entry.Error = sendErr.Error()
	}
	_, err := h.DB.InsertOne(ctx, entry)
	return err
}
