// Package permits issues, revokes and verifies vehicle commute permits
package permits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/logging"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/storage"
	"github.com/linesmerrill/commute-permit-api/templates/pdf"
)

// Renderer turns permit display data into PDF bytes
type Renderer interface {
	Render(doc pdf.PermitDocument) ([]byte, error)
}

// Service manages the permit lifecycle
type Service struct {
	Employees  databases.EmployeeDatabase
	Licenses   databases.LicenseDatabase
	Vehicles   databases.VehicleDatabase
	Insurances databases.InsuranceDatabase
	Permits    databases.PermitDatabase
	Files      storage.FileStore
	Renderer   Renderer
	Locker     Locker
	BaseURL    string
	Coverage   config.Coverage
	Location   *time.Location
	Now        func() time.Time
	NewToken   func() string
}

// NewService wires a Service over a record store
func NewService(store databases.RecordStore, files storage.FileStore, renderer Renderer, locker Locker, conf *config.Config) *Service {
	return &Service{
		Employees:  databases.NewEmployeeDatabase(store),
		Licenses:   databases.NewLicenseDatabase(store),
		Vehicles:   databases.NewVehicleDatabase(store),
		Insurances: databases.NewInsuranceDatabase(store),
		Permits:    databases.NewPermitDatabase(store),
		Files:      files,
		Renderer:   renderer,
		Locker:     locker,
		BaseURL:    conf.BaseURL,
		Coverage:   conf.Coverage,
		Location:   conf.Location(),
		Now:        time.Now,
		NewToken:   uuid.NewString,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) token() string {
	if s.NewToken == nil {
		return uuid.NewString()
	}
	return s.NewToken()
}

// PermitFileKey returns the storage key of a permit's PDF
func PermitFileKey(permitID string) string {
	return "permits/" + permitID + ".pdf"
}

// IssuePermit issues a permit for the vehicle once all three documents are
// approved. Failed preconditions are returned as *PreconditionError and
// leave no records behind.
func (s *Service) IssuePermit(ctx context.Context, employeeID, vehicleID string) (*models.Permit, error) {
	license, vehicle, insurance, err := s.gatherDocuments(ctx, employeeID, vehicleID)
	if err != nil {
		return nil, err
	}

	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, vehicleID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock vehicle %s: %w", vehicleID, err)
		}
		defer unlock()
	}

	if err := s.RevokeExistingPermit(ctx, vehicleID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	permit := models.Permit{
		EmployeeID:        employeeID,
		EmployeeName:      s.employeeName(ctx, employeeID, ""),
		VehicleID:         vehicleID,
		VehicleNumber:     displayOrUnknown(vehicle.VehicleNumber),
		VehicleModel:      displayOrUnknown(vehicle.DisplayModel()),
		IssueDate:         now,
		ExpirationDate:    CalculateExpiration(license.ExpirationDate, vehicle.InspectionExpirationDate, insurance.CoverageEndDate),
		VerificationToken: s.token(),
		Status:            models.PermitValid,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	id, err := s.Permits.InsertOne(ctx, permit)
	if err != nil {
		return nil, fmt.Errorf("failed to create permit: %w", err)
	}
	permit.ID = id

	logger := logging.FromContext(ctx)
	data, err := s.render(permit)
	if err != nil {
		logger.Errorw("failed to render permit, it will be regenerated on download", "permitID", id, "error", err)
		return &permit, nil
	}
	key := PermitFileKey(id)
	if err := s.Files.Save(ctx, key, data, "application/pdf"); err != nil {
		logger.Errorw("failed to store permit file, it will be regenerated on download", "permitID", id, "error", err)
		return &permit, nil
	}
	if err := s.Permits.UpdateOne(ctx, id, databases.Fields{"permit_file_key": key}); err != nil {
		logger.Errorw("failed to save permit file key", "permitID", id, "error", err)
		return &permit, nil
	}
	permit.PermitFileKey = key

	logger.Infow("issued permit", "permitID", id, "employeeID", employeeID, "vehicleID", vehicleID, "expirationDate", permit.ExpirationDate)
	return &permit, nil
}

func (s *Service) gatherDocuments(ctx context.Context, employeeID, vehicleID string) (*models.License, *models.Vehicle, *models.Insurance, error) {
	licenses, err := s.Licenses.FindActive(ctx,
		databases.Eq("employee_id", employeeID),
		databases.Eq("approval_status", models.ApprovalApproved))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get licenses: %w", err)
	}
	if len(licenses) == 0 {
		return nil, nil, nil, &PreconditionError{Reason: ReasonNoApprovedLicense}
	}
	license := latestApproved(licenses)

	vehicle, err := s.Vehicles.FindOne(ctx, vehicleID)
	if errors.Is(err, databases.ErrNotFound) {
		return nil, nil, nil, &PreconditionError{Reason: ReasonVehicleNotFound}
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	if vehicle.DeletedFlag || vehicle.EmployeeID != employeeID {
		return nil, nil, nil, &PreconditionError{Reason: ReasonVehicleNotFound}
	}
	if vehicle.ApprovalStatus != models.ApprovalApproved {
		return nil, nil, nil, &PreconditionError{Reason: ReasonVehicleNotApproved}
	}

	insurances, err := s.Insurances.FindActive(ctx,
		databases.Eq("employee_id", employeeID),
		databases.Eq("approval_status", models.ApprovalApproved))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get insurances: %w", err)
	}
	if len(insurances) == 0 {
		return nil, nil, nil, &PreconditionError{Reason: ReasonNoApprovedInsurance}
	}
	insurance := selectInsurance(insurances, vehicleID)
	if failures := s.coverageFailures(insurance); len(failures) > 0 {
		return nil, nil, nil, &PreconditionError{Reason: ReasonInsuranceRequirements, Failures: failures}
	}
	return &license, vehicle, &insurance, nil
}

func (s *Service) coverageFailures(i models.Insurance) []string {
	var failures []string
	if !i.LiabilityPersonalUnlimited {
		failures = append(failures, FailurePersonalNotUnlimited)
	}
	if i.LiabilityPropertyAmount < s.Coverage.PropertyMinimum {
		failures = append(failures, FailurePropertyBelowMinimum)
	}
	if i.PassengerInjuryAmount < s.Coverage.PassengerMinimum {
		failures = append(failures, FailurePassengerBelowMinimum)
	}
	return failures
}

// latestApproved picks the most recently approved document, falling back to
// the most recently updated when approval times are missing or equal
func latestApproved[T models.Document](docs []T) T {
	sorted := append([]T(nil), docs...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ma, mb := sorted[a].Meta(), sorted[b].Meta()
		ta, tb := approvedAt(ma), approvedAt(mb)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return ma.UpdatedAt.After(mb.UpdatedAt)
	})
	return sorted[0]
}

func approvedAt(m models.DocumentMeta) time.Time {
	if m.ApprovedAt == nil {
		return time.Time{}
	}
	return *m.ApprovedAt
}

// selectInsurance prefers policies linked to the vehicle
func selectInsurance(insurances []models.Insurance, vehicleID string) models.Insurance {
	var linked []models.Insurance
	for _, i := range insurances {
		if i.VehicleID == vehicleID {
			linked = append(linked, i)
		}
	}
	if len(linked) > 0 {
		return latestApproved(linked)
	}
	return latestApproved(insurances)
}

// RevokeExistingPermit revokes every valid permit of the vehicle. It is a
// no-op when there is none.
func (s *Service) RevokeExistingPermit(ctx context.Context, vehicleID string) error {
	existing, err := s.Permits.FindValidByVehicle(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("failed to get permits of vehicle %s: %w", vehicleID, err)
	}
	for _, p := range existing {
		if err := s.setRevoked(ctx, p.ID); err != nil {
			return err
		}
		logging.FromContext(ctx).Infow("revoked superseded permit", "permitID", p.ID, "vehicleID", vehicleID)
	}
	return nil
}

// RevokePermit revokes a single permit by id
func (s *Service) RevokePermit(ctx context.Context, permitID string) (*models.Permit, error) {
	permit, err := s.Permits.FindOne(ctx, permitID)
	if err != nil {
		return nil, err
	}
	if permit.Status != models.PermitRevoked {
		if err := s.setRevoked(ctx, permitID); err != nil {
			return nil, err
		}
		permit.Status = models.PermitRevoked
	}
	s.heal(ctx, permit)
	return permit, nil
}

func (s *Service) setRevoked(ctx context.Context, permitID string) error {
	if err := s.Permits.UpdateOne(ctx, permitID, databases.Fields{"status": models.PermitRevoked}); err != nil {
		return fmt.Errorf("failed to revoke permit %s: %w", permitID, err)
	}
	return nil
}

// GetPermit returns a permit by id with repaired display fields
func (s *Service) GetPermit(ctx context.Context, permitID string) (*models.Permit, error) {
	permit, err := s.Permits.FindOne(ctx, permitID)
	if err != nil {
		return nil, err
	}
	s.heal(ctx, permit)
	return permit, nil
}

// ListPermits returns an employee's permits, newest first
func (s *Service) ListPermits(ctx context.Context, employeeID string) ([]models.Permit, error) {
	list, err := s.Permits.FindByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.heal(ctx, &list[i])
	}
	return list, nil
}

// GetPermitByToken returns the permit with the token, or nil when no permit
// carries it
func (s *Service) GetPermitByToken(ctx context.Context, token string) (*models.Permit, error) {
	if token == "" {
		return nil, nil
	}
	permit, err := s.Permits.FindByToken(ctx, token)
	if errors.Is(err, databases.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return permit, nil
}

// Verify reports the public validity of the permit carrying token. Revocation
// is checked before the expiration date.
func (s *Service) Verify(ctx context.Context, token string) (models.VerificationResult, error) {
	permit, err := s.GetPermitByToken(ctx, token)
	if err != nil {
		return models.VerificationResult{}, err
	}
	if permit == nil {
		return models.VerificationResult{Valid: false, Message: MessageNotFound}, nil
	}
	s.heal(ctx, permit)

	now := s.now()
	result := models.VerificationResult{Permit: s.summary(*permit, now)}
	switch EffectiveStatus(*permit, now) {
	case models.PermitRevoked:
		result.Message = MessageRevoked
	case models.PermitExpired:
		result.Message = MessageExpired
	default:
		result.Valid = true
		result.Message = MessageValid
	}
	return result, nil
}

func (s *Service) summary(p models.Permit, now time.Time) *models.PermitSummary {
	return &models.PermitSummary{
		EmployeeName:   p.EmployeeName,
		VehicleNumber:  p.VehicleNumber,
		VehicleModel:   p.VehicleModel,
		IssueDate:      FormatDate(p.IssueDate, s.Location),
		ExpirationDate: FormatDate(p.ExpirationDate, s.Location),
		Status:         StatusLabel(EffectiveStatus(p, now)),
	}
}

// DownloadPermit returns the permit and its PDF. A missing artifact is
// rendered again from the stored fields.
func (s *Service) DownloadPermit(ctx context.Context, permitID string) (*models.Permit, []byte, error) {
	permit, err := s.Permits.FindOne(ctx, permitID)
	if err != nil {
		return nil, nil, err
	}
	s.heal(ctx, permit)

	logger := logging.FromContext(ctx)
	if permit.PermitFileKey != "" {
		data, err := s.Files.Load(ctx, permit.PermitFileKey)
		if err == nil {
			return permit, data, nil
		}
		if !errors.Is(err, storage.ErrNotExist) {
			logger.Warnw("failed to load permit file, regenerating", "permitID", permitID, "key", permit.PermitFileKey, "error", err)
		}
	}

	now := s.now().UTC()
	if permit.IssueDate.IsZero() {
		permit.IssueDate = now
	}
	if permit.ExpirationDate.IsZero() {
		permit.ExpirationDate = now.AddDate(1, 0, 0)
	}
	data, err := s.render(*permit)
	if err != nil {
		return nil, nil, err
	}

	key := PermitFileKey(permit.ID)
	if err := s.Files.Save(ctx, key, data, "application/pdf"); err != nil {
		logger.Warnw("failed to store regenerated permit file", "permitID", permitID, "error", err)
		return permit, data, nil
	}
	if permit.PermitFileKey != key {
		if err := s.Permits.UpdateOne(ctx, permit.ID, databases.Fields{"permit_file_key": key}); err != nil {
			logger.Warnw("failed to save permit file key", "permitID", permitID, "error", err)
			return permit, data, nil
		}
		permit.PermitFileKey = key
	}
	return permit, data, nil
}

func (s *Service) render(p models.Permit) ([]byte, error) {
	if s.Renderer == nil {
		return nil, errors.New("no permit renderer configured")
	}
	return s.Renderer.Render(pdf.PermitDocument{
		PermitID:        p.ID,
		EmployeeName:    p.EmployeeName,
		VehicleNumber:   p.VehicleNumber,
		VehicleModel:    p.VehicleModel,
		IssueDate:       FormatDate(p.IssueDate, s.Location),
		ExpirationDate:  FormatDate(p.ExpirationDate, s.Location),
		StatusLabel:     StatusLabel(EffectiveStatus(p, s.now())),
		VerificationURL: BuildVerificationURL(s.BaseURL, p.VerificationToken),
	})
}
