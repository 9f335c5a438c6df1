// Package expiration scans approved documents for upcoming and past
// expiration dates and notifies their owners and the admins
package expiration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/logging"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/permits"
)

// Bucket is the classification of a document in a run
type Bucket string

// Buckets
const (
	BucketExpiring Bucket = "expiring"
	BucketExpired  Bucket = "expired"
)

// Item is a single document that needs attention
type Item struct {
	DocumentType   models.DocumentType `json:"documentType"`
	DocumentID     string              `json:"documentId"`
	EmployeeID     string              `json:"employeeId"`
	ExpirationDate time.Time           `json:"expirationDate"`
	DaysRemaining  int                 `json:"daysRemaining"`
	Bucket         Bucket              `json:"bucket"`
}

// Summary aggregates the documents found by a scan
type Summary struct {
	ExpiringCount    int                         `json:"expiringCount"`
	ExpiredCount     int                         `json:"expiredCount"`
	ExpiringByType   map[models.DocumentType]int `json:"expiringByType"`
	ExpiredByType    map[models.DocumentType]int `json:"expiredByType"`
	Expiring         []Item                      `json:"expiring"`
	Expired          []Item                      `json:"expired"`
	FailedCategories []models.DocumentType       `json:"failedCategories,omitempty"`
	CheckedAt        time.Time                   `json:"checkedAt"`
}

// Monitor runs the expiration scan
type Monitor struct {
	Licenses   databases.LicenseDatabase
	Vehicles   databases.VehicleDatabase
	Insurances databases.InsuranceDatabase
	Employees  databases.EmployeeDatabase
	Dispatcher Dispatcher
	History    History
	Thresholds config.Thresholds
	Location   *time.Location
	Now        func() time.Time

	// held for the whole of Run
	running sync.Mutex
}

func (m *Monitor) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Monitor) threshold(t models.DocumentType) int {
	switch t {
	case models.DocumentTypeLicense:
		return m.Thresholds.License
	case models.DocumentTypeVehicle:
		return m.Thresholds.Vehicle
	case models.DocumentTypeInsurance:
		return m.Thresholds.Insurance
	}
	return config.DefaultWarningDays
}

// Classify buckets a document by the days left before it expires. ok is
// false when the document needs no attention yet.
func Classify(days, threshold int) (Bucket, bool) {
	switch {
	case days < 0:
		return BucketExpired, true
	case days <= threshold:
		return BucketExpiring, true
	}
	return "", false
}

// approvedDocuments lists approved, non deleted documents of one category
func (m *Monitor) approvedDocuments(ctx context.Context, t models.DocumentType) ([]models.Document, error) {
	approved := databases.Eq("approval_status", models.ApprovalApproved)
	switch t {
	case models.DocumentTypeLicense:
		return asDocuments(m.Licenses.FindActive(ctx, approved))
	case models.DocumentTypeVehicle:
		return asDocuments(m.Vehicles.FindActive(ctx, approved))
	case models.DocumentTypeInsurance:
		return asDocuments(m.Insurances.FindActive(ctx, approved))
	}
	return nil, fmt.Errorf("unknown document type %q", t)
}

func asDocuments[T models.Document](docs []T, err error) ([]models.Document, error) {
	if err != nil {
		return nil, err
	}
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	return out, nil
}

type categoryResult struct {
	items []Item
	err   error
}

// scan fetches the three categories concurrently and classifies every
// document. A category that fails to load is reported and skipped.
func (m *Monitor) scan(ctx context.Context) (Summary, error) {
	now := m.now()
	results := make([]categoryResult, len(models.DocumentTypes))

	var wg sync.WaitGroup
	for i, t := range models.DocumentTypes {
		wg.Add(1)
		go func(i int, t models.DocumentType) {
			defer wg.Done()
			docs, err := m.approvedDocuments(ctx, t)
			if err != nil {
				results[i].err = err
				return
			}
			for _, d := range docs {
				if !d.Meta().IsActiveApproved() {
					continue
				}
				days := permits.DaysUntilExpiration(d.ExpiresAt(), now)
				bucket, ok := Classify(days, m.threshold(t))
				if !ok {
					continue
				}
				results[i].items = append(results[i].items, Item{
					DocumentType:   t,
					DocumentID:     d.Meta().ID,
					EmployeeID:     d.Meta().EmployeeID,
					ExpirationDate: d.ExpiresAt(),
					DaysRemaining:  days,
					Bucket:         bucket,
				})
			}
		}(i, t)
	}
	wg.Wait()

	summary := Summary{
		ExpiringByType: map[models.DocumentType]int{},
		ExpiredByType:  map[models.DocumentType]int{},
		Expiring:       []Item{},
		Expired:        []Item{},
		CheckedAt:      now.UTC(),
	}
	var errs []error
	for i, t := range models.DocumentTypes {
		summary.ExpiringByType[t] = 0
		summary.ExpiredByType[t] = 0
		if err := results[i].err; err != nil {
			logging.FromContext(ctx).Errorw("failed to load documents for expiration check", "documentType", t, "error", err)
			summary.FailedCategories = append(summary.FailedCategories, t)
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
			continue
		}
		for _, item := range results[i].items {
			if item.Bucket == BucketExpired {
				summary.Expired = append(summary.Expired, item)
				summary.ExpiredByType[t]++
				continue
			}
			summary.Expiring = append(summary.Expiring, item)
			summary.ExpiringByType[t]++
		}
	}
	summary.ExpiringCount = len(summary.Expiring)
	summary.ExpiredCount = len(summary.Expired)
	sortItems(summary.Expiring)
	sortItems(summary.Expired)

	if len(errs) == len(models.DocumentTypes) {
		return summary, fmt.Errorf("failed to load any document category: %w", errors.Join(errs...))
	}
	return summary, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].DaysRemaining < items[b].DaysRemaining
	})
}

// Summary returns the current expiring and expired documents without
// sending anything
func (m *Monitor) Summary(ctx context.Context) (Summary, error) {
	return m.scan(ctx)
}
