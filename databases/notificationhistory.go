package databases

// go generate: mockery --name NotificationHistoryDatabase

import (
	"context"
	"time"

	"github.com/linesmerrill/commute-permit-api/models"
)

// NotificationHistoryDatabase contains the methods to use with the notification history table
type NotificationHistoryDatabase interface {
	InsertOne(ctx context.Context, entry models.NotificationHistory) (string, error)
	FindSentSince(ctx context.Context, recipientID, documentID, notificationType string, since time.Time) ([]models.NotificationHistory, error)
}

type notificationHistoryDatabase struct {
	store RecordStore
}

// NewNotificationHistoryDatabase initializes a new instance of notification history database with the provided store
func NewNotificationHistoryDatabase(store RecordStore) NotificationHistoryDatabase {
	return &notificationHistoryDatabase{store: store}
}

func (n *notificationHistoryDatabase) InsertOne(ctx context.Context, entry models.NotificationHistory) (string, error) {
	return n.store.Create(ctx, NotificationHistoryTable, entry)
}

// FindSentSince lists successful sends for the recipient, document and type.
// The time window is applied after decoding so every backend compares real
// instants rather than their stored encodings.
func (n *notificationHistoryDatabase) FindSentSince(ctx context.Context, recipientID, documentID, notificationType string, since time.Time) ([]models.NotificationHistory, error) {
	var entries []models.NotificationHistory
	err := n.store.List(ctx, NotificationHistoryTable, Where(
		Eq("recipient_id", recipientID),
		Eq("document_id", documentID),
		Eq("notification_type", notificationType),
		Eq("status", models.NotificationSent),
	), &entries)
	if err != nil {
		return nil, err
	}
	recent := entries[:0]
	for _, e := range entries {
		if !e.SentAt.Before(since) {
			recent = append(recent, e)
		}
	}
	return recent, nil
}
