package expiration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/notifications"
)

type sent struct {
	to  notifications.Recipient
	msg notifications.Message
}

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []sent
	failTo map[string]bool
}

func (d *recordingDispatcher) Send(ctx context.Context, to notifications.Recipient, msg notifications.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failTo[to.ID] {
		return errors.New("mailbox unavailable")
	}
	d.sent = append(d.sent, sent{to: to, msg: msg})
	return nil
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	d.sent = nil
	d.mu.Unlock()
}

// blockingDispatcher holds the first send until release is closed
type blockingDispatcher struct {
	*recordingDispatcher
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *blockingDispatcher) Send(ctx context.Context, to notifications.Recipient, msg notifications.Message) error {
	d.once.Do(func() {
		close(d.entered)
		<-d.release
	})
	return d.recordingDispatcher.Send(ctx, to, msg)
}

type failingLicenses struct {
	databases.LicenseDatabase
}

func (failingLicenses) FindActive(ctx context.Context, preds ...databases.Predicate) ([]models.License, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	monitor    *Monitor
	store      databases.RecordStore
	dispatcher *recordingDispatcher
	now        time.Time
	ownerID    string
	adminID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := databases.NewMemoryStore()
	dispatcher := &recordingDispatcher{failTo: map[string]bool{}}
	f := &fixture{store: store, dispatcher: dispatcher, now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	history := notifications.NewHistory(store)
	history.Now = clock
	thresholds := config.Thresholds{License: 30, Vehicle: 30, Insurance: 30}
	f.monitor = NewMonitor(store, dispatcher, history, thresholds, time.UTC)
	f.monitor.Now = clock

	ctx := context.Background()
	var err error
	f.ownerID, err = f.monitor.Employees.InsertOne(ctx, models.Employee{Name: "Taro Yamada", Email: "taro@example.com", Role: models.RoleEmployee})
	require.NoError(t, err)
	f.adminID, err = f.monitor.Employees.InsertOne(ctx, models.Employee{Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = f.monitor.Employees.InsertOne(ctx, models.Employee{Name: "Former Admin", Email: "old@example.com", Role: models.RoleAdmin, DeletedFlag: true})
	require.NoError(t, err)
	return f
}

func (f *fixture) approved() models.DocumentMeta {
	return models.DocumentMeta{EmployeeID: f.ownerID, ApprovalStatus: models.ApprovalApproved, Status: models.DocumentApproved}
}

// seedScenario stores a license expiring in 5 days, a vehicle that expired
// 3 days ago and an insurance policy that is far from expiring
func (f *fixture) seedScenario(t *testing.T) (licenseID, vehicleID string) {
	t.Helper()
	ctx := context.Background()
	var err error
	licenseID, err = f.monitor.Licenses.InsertOne(ctx, models.License{DocumentMeta: f.approved(), ExpirationDate: f.now.AddDate(0, 0, 5)})
	require.NoError(t, err)
	vehicleID, err = f.monitor.Vehicles.InsertOne(ctx, models.Vehicle{DocumentMeta: f.approved(), VehicleNumber: "SHN-1", InspectionExpirationDate: f.now.AddDate(0, 0, -3)})
	require.NoError(t, err)
	_, err = f.monitor.Insurances.InsertOne(ctx, models.Insurance{DocumentMeta: f.approved(), CoverageEndDate: f.now.AddDate(1, 0, 0)})
	require.NoError(t, err)
	return licenseID, vehicleID
}

func TestClassify(t *testing.T) {
	tests := []struct {
		days      int
		threshold int
		bucket    Bucket
		ok        bool
	}{
		{-1, 30, BucketExpired, true},
		{0, 30, BucketExpiring, true},
		{30, 30, BucketExpiring, true},
		{31, 30, "", false},
		{0, 0, BucketExpiring, true},
	}
	for _, tt := range tests {
		bucket, ok := Classify(tt.days, tt.threshold)
		assert.Equal(t, tt.bucket, bucket, "days %d", tt.days)
		assert.Equal(t, tt.ok, ok, "days %d", tt.days)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	licenseID, vehicleID := f.seedScenario(t)

	summary, err := f.monitor.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ExpiringCount)
	assert.Equal(t, 1, summary.ExpiredCount)
	assert.Equal(t, 1, summary.ExpiringByType[models.DocumentTypeLicense])
	assert.Equal(t, 0, summary.ExpiringByType[models.DocumentTypeVehicle])
	assert.Equal(t, 1, summary.ExpiredByType[models.DocumentTypeVehicle])
	assert.Equal(t, 0, summary.ExpiredByType[models.DocumentTypeInsurance])

	require.Len(t, summary.Expiring, 1)
	assert.Equal(t, licenseID, summary.Expiring[0].DocumentID)
	assert.Equal(t, 5, summary.Expiring[0].DaysRemaining)
	require.Len(t, summary.Expired, 1)
	assert.Equal(t, vehicleID, summary.Expired[0].DocumentID)
	assert.Equal(t, -3, summary.Expired[0].DaysRemaining)

	assert.Empty(t, f.dispatcher.sent, "summary never sends")
}

func TestSummaryExcludesDeletedAndUnapproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deletedID, err := f.monitor.Licenses.InsertOne(ctx, models.License{DocumentMeta: f.approved(), ExpirationDate: f.now.AddDate(0, 0, 5)})
	require.NoError(t, err)
	require.NoError(t, f.monitor.Licenses.SoftDelete(ctx, deletedID))

	pending := f.approved()
	pending.ApprovalStatus = models.ApprovalPending
	_, err = f.monitor.Vehicles.InsertOne(ctx, models.Vehicle{DocumentMeta: pending, InspectionExpirationDate: f.now.AddDate(0, 0, -3)})
	require.NoError(t, err)

	deleted := f.approved()
	deleted.DeletedFlag = true
	_, err = f.monitor.Insurances.InsertOne(ctx, models.Insurance{DocumentMeta: deleted, CoverageEndDate: f.now.AddDate(0, 0, -1)})
	require.NoError(t, err)

	summary, err := f.monitor.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ExpiringCount)
	assert.Equal(t, 0, summary.ExpiredCount)

	result, err := f.monitor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
}

func TestSummaryIsolatesFailingCategory(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	f.monitor.Licenses = failingLicenses{f.monitor.Licenses}

	summary, err := f.monitor.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.DocumentType{models.DocumentTypeLicense}, summary.FailedCategories)
	assert.Equal(t, 0, summary.ExpiringCount)
	assert.Equal(t, 1, summary.ExpiredCount)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	licenseID, vehicleID := f.seedScenario(t)

	result, err := f.monitor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, f.dispatcher.sent, 3)
	warning := f.dispatcher.sent[0]
	assert.Equal(t, f.ownerID, warning.to.ID)
	assert.Equal(t, models.NotificationExpirationWarning, warning.msg.Type)
	assert.Equal(t, licenseID, warning.msg.DocumentID)
	assert.Contains(t, warning.msg.Subject, "5 day(s)")
	assert.Contains(t, warning.msg.HTML, "2025年01月06日")

	var criticalTo []string
	for _, s := range f.dispatcher.sent[1:] {
		assert.Equal(t, models.NotificationExpirationCritical, s.msg.Type)
		assert.Equal(t, vehicleID, s.msg.DocumentID)
		assert.Contains(t, s.msg.Subject, "Taro Yamada")
		criticalTo = append(criticalTo, s.to.ID)
	}
	assert.ElementsMatch(t, []string{f.ownerID, f.adminID}, criticalTo)

	var history []models.NotificationHistory
	require.NoError(t, f.store.List(context.Background(), databases.NotificationHistoryTable, databases.Query{}, &history))
	assert.Len(t, history, 3)
}

func TestRunDedup(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	ctx := context.Background()

	_, err := f.monitor.Run(ctx)
	require.NoError(t, err)
	f.dispatcher.reset()

	f.now = f.now.Add(12 * time.Hour)
	result, err := f.monitor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 3, result.Skipped)
	assert.Empty(t, f.dispatcher.sent)

	f.now = f.now.Add(13 * time.Hour)
	result, err = f.monitor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Len(t, f.dispatcher.sent, 3)
}

func TestRunRejectsOverlappingRun(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	dispatcher := &blockingDispatcher{
		recordingDispatcher: f.dispatcher,
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
	f.monitor.Dispatcher = dispatcher
	ctx := context.Background()

	type outcome struct {
		result RunResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := f.monitor.Run(ctx)
		first <- outcome{result, err}
	}()
	<-dispatcher.entered

	_, err := f.monitor.Run(ctx)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(dispatcher.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 3, got.result.Sent)
	assert.Len(t, f.dispatcher.sent, 3)

	// the next run is accepted again and deduplicated by history
	result, err := f.monitor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, f.dispatcher.sent, 3)
}

func TestRunSwallowsSendFailures(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	f.dispatcher.failTo[f.ownerID] = true
	ctx := context.Background()

	result, err := f.monitor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Failed)

	var history []models.NotificationHistory
	require.NoError(t, f.store.List(ctx, databases.NotificationHistoryTable, databases.Where(databases.Eq("status", models.NotificationFailed)), &history))
	assert.Len(t, history, 2)
	assert.Equal(t, "mailbox unavailable", history[0].Error)

	// failed sends are retried on the next run
	delete(f.dispatcher.failTo, f.ownerID)
	f.dispatcher.reset()
	result, err = f.monitor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Skipped)
}

func TestRunAllCategoriesFail(t *testing.T) {
	f := newFixture(t)
	f.monitor.Licenses = failingLicenses{}
	f.monitor.Vehicles = failingVehicles{}
	f.monitor.Insurances = failingInsurances{}

	_, err := f.monitor.Run(context.Background())
	assert.Error(t, err)
}

func TestRunStopsWhenCanceled(t *testing.T) {
	f := newFixture(t)
	f.seedScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.monitor.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.dispatcher.sent)
}

type failingVehicles struct {
	databases.VehicleDatabase
}

func (failingVehicles) FindActive(ctx context.Context, preds ...databases.Predicate) ([]models.Vehicle, error) {
	return nil, errors.New("connection refused")
}

type failingInsurances struct {
	databases.InsuranceDatabase
}

func (failingInsurances) FindActive(ctx context.Context, preds ...databases.Predicate) ([]models.Insurance, error) {
	return nil, errors.New("connection refused")
}
