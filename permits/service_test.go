package permits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/storage"
	"github.com/linesmerrill/commute-permit-api/templates/pdf"
)

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls []pdf.PermitDocument
}

func (f *fakeRenderer) Render(doc pdf.PermitDocument) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, doc)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + doc.PermitID), nil
}

type fixture struct {
	svc        *Service
	store      databases.RecordStore
	renderer   *fakeRenderer
	files      *storage.Local
	now        time.Time
	employeeID string
	vehicleID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := databases.NewMemoryStore()
	files := storage.NewLocal(t.TempDir())
	renderer := &fakeRenderer{}
	now := time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC)
	var (
		tokenMu sync.Mutex
		tokens  int
	)

	svc := &Service{
		Employees:  databases.NewEmployeeDatabase(store),
		Licenses:   databases.NewLicenseDatabase(store),
		Vehicles:   databases.NewVehicleDatabase(store),
		Insurances: databases.NewInsuranceDatabase(store),
		Permits:    databases.NewPermitDatabase(store),
		Files:      files,
		Renderer:   renderer,
		Locker:     NewKeyedMutex(),
		BaseURL:    "https://permits.example.com/",
		Coverage: config.Coverage{
			PropertyMinimum:  config.DefaultPropertyMinimum,
			PassengerMinimum: config.DefaultPassengerMinimum,
		},
		Location: time.UTC,
		Now:      func() time.Time { return now },
		NewToken: func() string {
			tokenMu.Lock()
			defer tokenMu.Unlock()
			tokens++
			return fmt.Sprintf("token-%d", tokens)
		},
	}
	f := &fixture{svc: svc, store: store, renderer: renderer, files: files, now: now}

	ctx := context.Background()
	var err error
	f.employeeID, err = svc.Employees.InsertOne(ctx, models.Employee{Name: "Taro Yamada", Email: "taro@example.com", Role: models.RoleEmployee})
	require.NoError(t, err)

	approved := models.DocumentMeta{EmployeeID: f.employeeID, ApprovalStatus: models.ApprovalApproved, Status: models.DocumentApproved}
	_, err = svc.Licenses.InsertOne(ctx, models.License{DocumentMeta: approved, LicenseNumber: "L-1", ExpirationDate: date(2025, 12, 31)})
	require.NoError(t, err)
	f.vehicleID, err = svc.Vehicles.InsertOne(ctx, models.Vehicle{DocumentMeta: approved, VehicleNumber: "SHN-1234", Manufacturer: "Toyota", ModelName: "Prius", InspectionExpirationDate: date(2025, 3, 15)})
	require.NoError(t, err)
	_, err = svc.Insurances.InsertOne(ctx, compliantInsurance(approved, f.vehicleID))
	require.NoError(t, err)
	return f
}

func compliantInsurance(meta models.DocumentMeta, vehicleID string) models.Insurance {
	return models.Insurance{
		DocumentMeta:               meta,
		VehicleID:                  vehicleID,
		InsuranceCompany:           "Mutual",
		PolicyNumber:               "P-1",
		CoverageEndDate:            date(2025, 9, 30),
		LiabilityPersonalUnlimited: true,
		LiabilityPropertyAmount:    config.DefaultPropertyMinimum,
		PassengerInjuryAmount:      config.DefaultPassengerMinimum,
	}
}

func (f *fixture) permits(t *testing.T) []models.Permit {
	t.Helper()
	var list []models.Permit
	require.NoError(t, f.store.List(context.Background(), databases.PermitTable, databases.Query{}, &list))
	return list
}

func TestIssuePermit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	permit, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)

	assert.NotEmpty(t, permit.ID)
	assert.Equal(t, date(2025, 3, 15), permit.ExpirationDate)
	assert.Equal(t, models.PermitValid, permit.Status)
	assert.Equal(t, "Taro Yamada", permit.EmployeeName)
	assert.Equal(t, "SHN-1234", permit.VehicleNumber)
	assert.Equal(t, "Toyota Prius", permit.VehicleModel)
	assert.Equal(t, "token-1", permit.VerificationToken)
	assert.Equal(t, PermitFileKey(permit.ID), permit.PermitFileKey)

	require.Len(t, f.renderer.calls, 1)
	assert.Equal(t, "https://permits.example.com/verify/token-1", f.renderer.calls[0].VerificationURL)
	assert.Equal(t, permit.ID, f.renderer.calls[0].PermitID)
	assert.Equal(t, "2025年03月15日", f.renderer.calls[0].ExpirationDate)

	stored, err := f.svc.Permits.FindOne(ctx, permit.ID)
	require.NoError(t, err)
	assert.Equal(t, permit.PermitFileKey, stored.PermitFileKey)

	data, err := f.files.Load(ctx, permit.PermitFileKey)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-"+permit.ID, string(data))
}

func TestIssuePermitSupersedesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)
	second, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)
	_, err = f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)

	valid := 0
	for _, p := range f.permits(t) {
		if p.Status == models.PermitValid {
			valid++
		}
	}
	assert.Equal(t, 1, valid)

	old, err := f.svc.Permits.FindOne(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PermitRevoked, old.Status)
	old, err = f.svc.Permits.FindOne(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PermitRevoked, old.Status)
}

func TestIssuePermitConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
			errs <- err
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-errs)
	}

	valid := 0
	for _, p := range f.permits(t) {
		if p.Status == models.PermitValid {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestIssuePermitPreconditions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *fixture) (employeeID, vehicleID string)
		reason   string
		failures []string
	}{
		{
			name: "no approved license",
			setup: func(t *testing.T, f *fixture) (string, string) {
				licenses, err := f.svc.Licenses.FindActive(ctx)
				require.NoError(t, err)
				require.NoError(t, f.svc.Licenses.UpdateOne(ctx, licenses[0].ID, databases.Fields{"approval_status": models.ApprovalPending}))
				return f.employeeID, f.vehicleID
			},
			reason: ReasonNoApprovedLicense,
		},
		{
			name: "deleted license",
			setup: func(t *testing.T, f *fixture) (string, string) {
				licenses, err := f.svc.Licenses.FindActive(ctx)
				require.NoError(t, err)
				require.NoError(t, f.svc.Licenses.SoftDelete(ctx, licenses[0].ID))
				return f.employeeID, f.vehicleID
			},
			reason: ReasonNoApprovedLicense,
		},
		{
			name: "unknown vehicle",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return f.employeeID, "missing"
			},
			reason: ReasonVehicleNotFound,
		},
		{
			name: "vehicle of another employee",
			setup: func(t *testing.T, f *fixture) (string, string) {
				id, err := f.svc.Vehicles.InsertOne(ctx, models.Vehicle{
					DocumentMeta:  models.DocumentMeta{EmployeeID: "someone-else", ApprovalStatus: models.ApprovalApproved},
					VehicleNumber: "X-1",
				})
				require.NoError(t, err)
				return f.employeeID, id
			},
			reason: ReasonVehicleNotFound,
		},
		{
			name: "vehicle pending",
			setup: func(t *testing.T, f *fixture) (string, string) {
				require.NoError(t, f.svc.Vehicles.UpdateOne(ctx, f.vehicleID, databases.Fields{"approval_status": models.ApprovalPending}))
				return f.employeeID, f.vehicleID
			},
			reason: ReasonVehicleNotApproved,
		},
		{
			name: "no approved insurance",
			setup: func(t *testing.T, f *fixture) (string, string) {
				insurances, err := f.svc.Insurances.FindActive(ctx)
				require.NoError(t, err)
				require.NoError(t, f.svc.Insurances.SetApproval(ctx, insurances[0].ID, models.ApprovalRejected, "blurry scan"))
				return f.employeeID, f.vehicleID
			},
			reason: ReasonNoApprovedInsurance,
		},
		{
			name: "personal liability limited",
			setup: func(t *testing.T, f *fixture) (string, string) {
				insurances, err := f.svc.Insurances.FindActive(ctx)
				require.NoError(t, err)
				require.NoError(t, f.svc.Insurances.UpdateOne(ctx, insurances[0].ID, databases.Fields{"liability_personal_unlimited": false}))
				return f.employeeID, f.vehicleID
			},
			reason:   ReasonInsuranceRequirements,
			failures: []string{FailurePersonalNotUnlimited},
		},
		{
			name: "every coverage below minimum",
			setup: func(t *testing.T, f *fixture) (string, string) {
				insurances, err := f.svc.Insurances.FindActive(ctx)
				require.NoError(t, err)
				require.NoError(t, f.svc.Insurances.UpdateOne(ctx, insurances[0].ID, databases.Fields{
					"liability_personal_unlimited": false,
					"liability_property_amount":    int64(10),
					"passenger_injury_amount":      int64(10),
				}))
				return f.employeeID, f.vehicleID
			},
			reason:   ReasonInsuranceRequirements,
			failures: []string{FailurePersonalNotUnlimited, FailurePropertyBelowMinimum, FailurePassengerBelowMinimum},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			employeeID, vehicleID := tt.setup(t, f)

			permit, err := f.svc.IssuePermit(ctx, employeeID, vehicleID)
			assert.Nil(t, permit)
			var precondition *PreconditionError
			require.True(t, errors.As(err, &precondition), "got %v", err)
			assert.Equal(t, tt.reason, precondition.Reason)
			assert.Equal(t, tt.failures, precondition.Failures)
			assert.Empty(t, f.permits(t))
		})
	}
}

func TestIssuePermitPreconditionKeepsExistingPermit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)

	insurances, err := f.svc.Insurances.FindActive(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.Insurances.UpdateOne(ctx, insurances[0].ID, databases.Fields{"liability_personal_unlimited": false}))

	_, err = f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.Error(t, err)

	stored, err := f.svc.Permits.FindOne(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PermitValid, stored.Status)
	assert.Len(t, f.permits(t), 1)
}

func TestIssuePermitPrefersLatestApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later := f.now.Add(-time.Hour)
	_, err := f.svc.Licenses.InsertOne(ctx, models.License{
		DocumentMeta:   models.DocumentMeta{EmployeeID: f.employeeID, ApprovalStatus: models.ApprovalApproved, ApprovedAt: &later},
		LicenseNumber:  "L-2",
		ExpirationDate: date(2025, 2, 1),
	})
	require.NoError(t, err)

	permit, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 2, 1), permit.ExpirationDate)
}

func TestIssuePermitToleratesRenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("font missing")
	ctx := context.Background()

	permit, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)
	assert.Empty(t, permit.PermitFileKey)

	stored, err := f.svc.Permits.FindOne(ctx, permit.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PermitFileKey)
	assert.Equal(t, models.PermitValid, stored.Status)

	f.renderer.err = nil
	got, data, err := f.svc.DownloadPermit(ctx, permit.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-"+permit.ID, string(data))
	assert.Equal(t, PermitFileKey(permit.ID), got.PermitFileKey)

	stored, err = f.svc.Permits.FindOne(ctx, permit.ID)
	require.NoError(t, err)
	assert.Equal(t, PermitFileKey(permit.ID), stored.PermitFileKey)
}

func TestDownloadPermit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	permit, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)

	_, data, err := f.svc.DownloadPermit(ctx, permit.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-"+permit.ID, string(data))
	assert.Len(t, f.renderer.calls, 1, "stored artifact is served without rendering")

	_, _, err = f.svc.DownloadPermit(ctx, "missing")
	assert.ErrorIs(t, err, databases.ErrNotFound)
}

func TestDownloadPermitRegeneratesWithDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// lost artifact and missing dates
	id, err := f.svc.Permits.InsertOne(ctx, models.Permit{
		EmployeeID:        f.employeeID,
		EmployeeName:      "Taro Yamada",
		VehicleID:         f.vehicleID,
		VehicleNumber:     "SHN-1234",
		VehicleModel:      "Toyota Prius",
		PermitFileKey:     "permits/gone.pdf",
		VerificationToken: "tok",
		Status:            models.PermitValid,
	})
	require.NoError(t, err)

	_, data, err := f.svc.DownloadPermit(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	require.Len(t, f.renderer.calls, 1)
	doc := f.renderer.calls[0]
	assert.Equal(t, "2025年01月10日", doc.IssueDate)
	assert.Equal(t, "2026年01月10日", doc.ExpirationDate)
	assert.Equal(t, "https://permits.example.com/verify/tok", doc.VerificationURL)
}

func TestDownloadPermitRenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("boom")
	ctx := context.Background()

	permit, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)
	_, _, err = f.svc.DownloadPermit(ctx, permit.ID)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	insert := func(status models.PermitStatus, expiration time.Time, token string) {
		_, err := f.svc.Permits.InsertOne(ctx, models.Permit{
			EmployeeID:        f.employeeID,
			EmployeeName:      "Taro Yamada",
			VehicleID:         f.vehicleID,
			VehicleNumber:     "SHN-1234",
			VehicleModel:      "Toyota Prius",
			IssueDate:         date(2025, 1, 1),
			ExpirationDate:    expiration,
			VerificationToken: token,
			Status:            status,
		})
		require.NoError(t, err)
	}
	insert(models.PermitValid, date(2025, 3, 15), "valid")
	insert(models.PermitValid, f.now.AddDate(0, 0, -1), "stale")
	insert(models.PermitExpired, date(2025, 3, 15), "expired")
	insert(models.PermitRevoked, date(2025, 3, 15), "revoked")
	insert(models.PermitRevoked, f.now.AddDate(0, 0, -1), "revoked-stale")

	tests := []struct {
		token   string
		valid   bool
		message string
		status  string
	}{
		{"valid", true, MessageValid, "Active"},
		{"stale", false, MessageExpired, "Expired"},
		{"expired", false, MessageExpired, "Expired"},
		{"revoked", false, MessageRevoked, "Revoked"},
		{"revoked-stale", false, MessageRevoked, "Revoked"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			result, err := f.svc.Verify(ctx, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.message, result.Message)
			require.NotNil(t, result.Permit)
			assert.Equal(t, tt.status, result.Permit.Status)
			assert.Equal(t, "2025年01月01日", result.Permit.IssueDate)
			assert.Equal(t, "Taro Yamada", result.Permit.EmployeeName)
		})
	}

	for _, token := range []string{"nope", ""} {
		result, err := f.svc.Verify(ctx, token)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, MessageNotFound, result.Message)
		assert.Nil(t, result.Permit)
	}
}

func TestVerifyHealsCorruptedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Permits.InsertOne(ctx, models.Permit{
		EmployeeID:        f.employeeID,
		EmployeeName:      "[object Object]",
		VehicleID:         f.vehicleID,
		VehicleNumber:     "SHN-1234",
		VehicleModel:      "undefined",
		IssueDate:         date(2025, 1, 1),
		ExpirationDate:    date(2025, 3, 15),
		VerificationToken: "tok",
		Status:            models.PermitValid,
	})
	require.NoError(t, err)
	_, err = f.svc.Permits.InsertOne(ctx, models.Permit{
		EmployeeID:        "gone",
		EmployeeName:      "",
		VehicleID:         "gone",
		VerificationToken: "orphan",
		ExpirationDate:    date(2025, 3, 15),
		Status:            models.PermitValid,
	})
	require.NoError(t, err)

	result, err := f.svc.Verify(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "Taro Yamada", result.Permit.EmployeeName)
	assert.Equal(t, "Toyota Prius", result.Permit.VehicleModel)

	result, err = f.svc.Verify(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, UnknownValue, result.Permit.EmployeeName)
	assert.Equal(t, UnknownValue, result.Permit.VehicleNumber)
	assert.Equal(t, UnknownValue, result.Permit.VehicleModel)
}

func TestRevokePermit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	permit, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)

	revoked, err := f.svc.RevokePermit(ctx, permit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PermitRevoked, revoked.Status)

	result, err := f.svc.Verify(ctx, permit.VerificationToken)
	require.NoError(t, err)
	assert.Equal(t, MessageRevoked, result.Message)

	_, err = f.svc.RevokePermit(ctx, "missing")
	assert.ErrorIs(t, err, databases.ErrNotFound)

	assert.NoError(t, f.svc.RevokeExistingPermit(ctx, "vehicle-without-permits"))
}

func TestListPermits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)
	f.svc.Now = func() time.Time { return f.now.Add(time.Hour) }
	second, err := f.svc.IssuePermit(ctx, f.employeeID, f.vehicleID)
	require.NoError(t, err)

	list, err := f.svc.ListPermits(ctx, f.employeeID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	got, err := f.svc.GetPermit(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PermitRevoked, got.Status)
}
