package templates

import (
	"fmt"
	"html"
)

// ExpirationEmail carries the values shown in an expiration notice
type ExpirationEmail struct {
	RecipientName  string
	OwnerName      string
	DocumentLabel  string
	ExpirationDate string
	Days           int
}

// RenderExpirationWarningEmail renders the notice sent to an employee whose
// document expires within the warning window
func RenderExpirationWarningEmail(subject string, e ExpirationEmail) string {
	body := fmt.Sprintf(`<p>%s,</p>
      <p>Your %s expires on <strong>%s</strong> (%d day(s) remaining).</p>
      <p>Please upload the renewed document so your commute permit stays valid.</p>`,
		html.EscapeString(e.RecipientName),
		html.EscapeString(e.DocumentLabel),
		html.EscapeString(e.ExpirationDate),
		e.Days,
	)
	return renderLayout(subject, "#d97706", body)
}

// RenderExpirationCriticalEmail renders the notice sent to the owner and to
// every admin once a document has expired
func RenderExpirationCriticalEmail(subject string, e ExpirationEmail) string {
	days := -e.Days
	body := fmt.Sprintf(`<p>%s,</p>
      <table>
        <tr><td>Employee</td><td>%s</td></tr>
        <tr><td>Document</td><td>%s</td></tr>
        <tr><td>Expired on</td><td><strong>%s</strong> (%d day(s) ago)</td></tr>
      </table>
      <p>Commuting by car is not permitted until a renewed document has been approved.</p>`,
		html.EscapeString(e.RecipientName),
		html.EscapeString(e.OwnerName),
		html.EscapeString(e.DocumentLabel),
		html.EscapeString(e.ExpirationDate),
		days,
	)
	return renderLayout(subject, "#dc2626", body)
}
