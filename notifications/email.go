package notifications

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// MailClient is the part of the sendgrid client used here
type MailClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailDispatcher sends notices through SendGrid
type EmailDispatcher struct {
	Client    MailClient
	FromName  string
	FromEmail string
}

// NewEmailDispatcher returns an EmailDispatcher using the SendGrid API key
func NewEmailDispatcher(apiKey, fromName, fromEmail string) *EmailDispatcher {
	return &EmailDispatcher{
		Client:    sendgrid.NewSendClient(apiKey),
		FromName:  fromName,
		FromEmail: fromEmail,
	}
}

// Send implements Dispatcher
func (e *EmailDispatcher) Send(ctx context.Context, to Recipient, msg Message) error {
	if to.Email == "" {
		return fmt.Errorf("recipient %s has no email address", to.ID)
	}
	from := mail.NewEmail(e.FromName, e.FromEmail)
	message := mail.NewSingleEmail(from, msg.Subject, mail.NewEmail(to.Name, to.Email), msg.Text, msg.HTML)
	response, err := e.Client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
