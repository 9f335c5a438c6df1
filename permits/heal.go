package permits

import (
	"context"

	"github.com/linesmerrill/commute-permit-api/logging"
	"github.com/linesmerrill/commute-permit-api/models"
)

// heal replaces corrupted denormalized display fields with values read from
// the employee and vehicle records, or UnknownValue. The permit record itself
// is not rewritten.
func (s *Service) heal(ctx context.Context, p *models.Permit) {
	if !models.IsUsableDisplayValue(p.EmployeeName) {
		logging.FromContext(ctx).Warnw("repairing permit employee name", "permitID", p.ID, "stored", p.EmployeeName)
		p.EmployeeName = s.employeeName(ctx, p.EmployeeID, p.EmployeeName)
	}
	if models.IsUsableDisplayValue(p.VehicleNumber) && models.IsUsableDisplayValue(p.VehicleModel) {
		return
	}
	logging.FromContext(ctx).Warnw("repairing permit vehicle fields", "permitID", p.ID, "vehicleNumber", p.VehicleNumber, "vehicleModel", p.VehicleModel)
	var vehicle *models.Vehicle
	if p.VehicleID != "" {
		vehicle, _ = s.Vehicles.FindOne(ctx, p.VehicleID)
	}
	if !models.IsUsableDisplayValue(p.VehicleNumber) {
		p.VehicleNumber = UnknownValue
		if vehicle != nil && models.IsUsableDisplayValue(vehicle.VehicleNumber) {
			p.VehicleNumber = vehicle.VehicleNumber
		}
	}
	if !models.IsUsableDisplayValue(p.VehicleModel) {
		p.VehicleModel = UnknownValue
		if vehicle != nil && models.IsUsableDisplayValue(vehicle.DisplayModel()) {
			p.VehicleModel = vehicle.DisplayModel()
		}
	}
}

// employeeName returns stored when usable, else the employee record's name,
// else UnknownValue
func (s *Service) employeeName(ctx context.Context, employeeID, stored string) string {
	if models.IsUsableDisplayValue(stored) {
		return stored
	}
	if employeeID != "" && s.Employees != nil {
		if e, err := s.Employees.FindOne(ctx, employeeID); err == nil && models.IsUsableDisplayValue(e.Name.String()) {
			return e.Name.String()
		}
	}
	return UnknownValue
}

func displayOrUnknown(s string) string {
	if models.IsUsableDisplayValue(s) {
		return s
	}
	return UnknownValue
}
