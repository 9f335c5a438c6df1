// Package notifications delivers expiration notices to employees and admins
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/linesmerrill/commute-permit-api/logging"
	"github.com/linesmerrill/commute-permit-api/models"
)

// Recipient is the person a notice is addressed to
type Recipient struct {
	ID    string
	Name  string
	Email string
}

// Message is a rendered notice
type Message struct {
	Type         string              `json:"type"`
	DocumentType models.DocumentType `json:"document_type"`
	DocumentID   string              `json:"document_id"`
	Subject      string              `json:"subject"`
	HTML         string              `json:"-"`
	Text         string              `json:"text"`
}

// Dispatcher sends a message through one channel
type Dispatcher interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

// Fanout sends through every dispatcher. It succeeds when at least one
// channel delivered the message.
type Fanout []Dispatcher

// Send implements Dispatcher
func (f Fanout) Send(ctx context.Context, to Recipient, msg Message) error {
	if len(f) == 0 {
		return errors.New("no notification channel configured")
	}
	var errs []error
	for _, d := range f {
		if err := d.Send(ctx, to, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f) {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		logging.FromContext(ctx).Debugw("notification partially delivered", "recipientID", to.ID, "errors", errors.Join(errs...))
	}
	return nil
}

// LogDispatcher writes notices to the log. It stands in for email when no
// mail provider is configured.
type LogDispatcher struct{}

// Send implements Dispatcher
func (LogDispatcher) Send(ctx context.Context, to Recipient, msg Message) error {
	if to.Email == "" {
		return fmt.Errorf("recipient %s has no email address", to.ID)
	}
	logging.FromContext(ctx).Infow("notification",
		"recipientID", to.ID,
		"email", to.Email,
		"type", msg.Type,
		"documentType", msg.DocumentType,
		"documentID", msg.DocumentID,
		"subject", msg.Subject,
	)
	return nil
}
