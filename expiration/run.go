package expiration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/logging"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/notifications"
	"github.com/linesmerrill/commute-permit-api/permits"
	templates "github.com/linesmerrill/commute-permit-api/templates/html"
)

// Dispatcher sends a single notice
type Dispatcher interface {
	Send(ctx context.Context, to notifications.Recipient, msg notifications.Message) error
}

// History answers duplicate checks and records send attempts
type History interface {
	HasRecentDuplicate(ctx context.Context, recipientID, documentID, notificationType string, window time.Duration) (bool, error)
	Record(ctx context.Context, to notifications.Recipient, msg notifications.Message, sendErr error) error
}

// ErrRunInProgress is returned by Run while another run of the same Monitor
// has not finished
var ErrRunInProgress = errors.New("expiration check already running")

// RunResult is the outcome of a monitoring run
type RunResult struct {
	Summary Summary `json:"summary"`
	Sent    int     `json:"sent"`
	Skipped int     `json:"skipped"`
	Failed  int     `json:"failed"`
}

var documentLabels = map[models.DocumentType]string{
	models.DocumentTypeLicense:   "driver's license",
	models.DocumentTypeVehicle:   "vehicle inspection",
	models.DocumentTypeInsurance: "insurance policy",
}

// Run scans the documents and sends warning and critical notices. A notice
// already sent within the dedup window is skipped. Send failures are
// recorded and do not stop the run; an error is returned only when no
// category could be loaded or ctx ends. Runs do not overlap: a call made
// while another is in progress returns ErrRunInProgress.
func (m *Monitor) Run(ctx context.Context) (RunResult, error) {
	if !m.running.TryLock() {
		return RunResult{}, ErrRunInProgress
	}
	defer m.running.Unlock()

	logger := logging.FromContext(ctx)
	summary, err := m.scan(ctx)
	result := RunResult{Summary: summary}
	if err != nil {
		return result, err
	}

	r := &run{Monitor: m, result: &result, employees: map[string]*models.Employee{}}
	admins, err := m.Employees.FindAdmins(ctx)
	if err != nil {
		logger.Errorw("failed to load admins, critical notices go to owners only", "error", err)
	}

	for _, item := range summary.Expiring {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		owner, ok := r.employee(ctx, item.EmployeeID)
		if !ok {
			result.Failed++
			continue
		}
		r.notify(ctx, recipient(*owner), m.warningMessage(item, *owner))
	}

	for _, item := range summary.Expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		owner, ok := r.employee(ctx, item.EmployeeID)
		var recipients []models.Employee
		if ok {
			recipients = append(recipients, *owner)
		} else {
			result.Failed++
			owner = &models.Employee{ID: item.EmployeeID, Name: permits.UnknownValue}
		}
		for _, a := range admins {
			if a.ID != item.EmployeeID {
				recipients = append(recipients, a)
			}
		}
		for _, to := range recipients {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			r.notify(ctx, recipient(to), m.criticalMessage(item, to, *owner))
		}
	}

	logger.Infow("expiration check finished",
		"expiring", summary.ExpiringCount,
		"expired", summary.ExpiredCount,
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"failedCategories", summary.FailedCategories,
	)
	return result, nil
}

type run struct {
	*Monitor
	result    *RunResult
	employees map[string]*models.Employee
}

func (r *run) employee(ctx context.Context, id string) (*models.Employee, bool) {
	if e, ok := r.employees[id]; ok {
		return e, e != nil
	}
	e, err := r.Employees.FindOne(ctx, id)
	if err != nil || e.DeletedFlag {
		logging.FromContext(ctx).Warnw("document owner not found", "employeeID", id, "error", err)
		r.employees[id] = nil
		return nil, false
	}
	r.employees[id] = e
	return e, true
}

// notify is one unit of work: dedup check, send, record
func (r *run) notify(ctx context.Context, to notifications.Recipient, msg notifications.Message) {
	logger := logging.FromContext(ctx)
	dup, err := r.History.HasRecentDuplicate(ctx, to.ID, msg.DocumentID, msg.Type, notifications.DedupWindow)
	if err != nil {
		logger.Warnw("failed to check notification history", "recipientID", to.ID, "documentID", msg.DocumentID, "error", err)
	}
	if dup {
		r.result.Skipped++
		return
	}

	sendErr := r.Dispatcher.Send(ctx, to, msg)
	if sendErr != nil {
		r.result.Failed++
		logger.Errorw("failed to send notification", "recipientID", to.ID, "type", msg.Type, "documentID", msg.DocumentID, "error", sendErr)
	} else {
		r.result.Sent++
	}
	if err := r.History.Record(ctx, to, msg, sendErr); err != nil {
		logger.Errorw("failed to record notification", "recipientID", to.ID, "documentID", msg.DocumentID, "error", err)
	}
}

func recipient(e models.Employee) notifications.Recipient {
	return notifications.Recipient{ID: e.ID, Name: e.Name.String(), Email: e.Email}
}

func (m *Monitor) warningMessage(item Item, owner models.Employee) notifications.Message {
	label := documentLabels[item.DocumentType]
	date := permits.FormatDate(item.ExpirationDate, m.Location)
	subject := fmt.Sprintf("[Commute permit] Your %s expires in %d day(s)", label, item.DaysRemaining)
	return notifications.Message{
		Type:         models.NotificationExpirationWarning,
		DocumentType: item.DocumentType,
		DocumentID:   item.DocumentID,
		Subject:      subject,
		HTML: templates.RenderExpirationWarningEmail(subject, templates.ExpirationEmail{
			RecipientName:  owner.Name.String(),
			OwnerName:      owner.Name.String(),
			DocumentLabel:  label,
			ExpirationDate: date,
			Days:           item.DaysRemaining,
		}),
		Text: fmt.Sprintf("Your %s expires on %s (%d day(s) remaining). Please upload the renewed document.", label, date, item.DaysRemaining),
	}
}

func (m *Monitor) criticalMessage(item Item, to, owner models.Employee) notifications.Message {
	label := documentLabels[item.DocumentType]
	date := permits.FormatDate(item.ExpirationDate, m.Location)
	subject := fmt.Sprintf("[Commute permit] %s of %s has expired", label, owner.Name)
	return notifications.Message{
		Type:         models.NotificationExpirationCritical,
		DocumentType: item.DocumentType,
		DocumentID:   item.DocumentID,
		Subject:      subject,
		HTML: templates.RenderExpirationCriticalEmail(subject, templates.ExpirationEmail{
			RecipientName:  to.Name.String(),
			OwnerName:      owner.Name.String(),
			DocumentLabel:  label,
			ExpirationDate: date,
			Days:           item.DaysRemaining,
		}),
		Text: fmt.Sprintf("The %s of %s expired on %s (%d day(s) ago).", label, owner.Name, date, -item.DaysRemaining),
	}
}

// NewMonitor wires a Monitor over a record store
func NewMonitor(store databases.RecordStore, dispatcher Dispatcher, history History, thresholds config.Thresholds, loc *time.Location) *Monitor {
	return &Monitor{
		Licenses:   databases.NewLicenseDatabase(store),
		Vehicles:   databases.NewVehicleDatabase(store),
		Insurances: databases.NewInsuranceDatabase(store),
		Employees:  databases.NewEmployeeDatabase(store),
		Dispatcher: dispatcher,
		History:    history,
		Thresholds: thresholds,
		Location:   loc,
		Now:        time.Now,
	}
}
