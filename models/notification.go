package models

import "time"

// Notification types recorded in the history collection
const (
	NotificationExpirationWarning  = "expiration_warning"
	NotificationExpirationCritical = "expiration_critical"
)

// Notification delivery outcomes
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// NotificationHistory records a single notification attempt so later runs
// can suppress duplicates
type NotificationHistory struct {
	ID               string       `json:"id" bson:"_id,omitempty"`
	RecipientID      string       `json:"recipient_id" bson:"recipient_id"`
	NotificationType string       `json:"notification_type" bson:"notification_type"`
	DocumentType     DocumentType `json:"document_type" bson:"document_type"`
	DocumentID       string       `json:"document_id" bson:"document_id"`
	SentAt           time.Time    `json:"sent_at" bson:"sent_at"`
	Status           string       `json:"status" bson:"status"`
	Error            string       `json:"error,omitempty" bson:"error,omitempty"`
}
