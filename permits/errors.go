package permits

import "strings"

// Issuance precondition reasons
const (
	ReasonNoApprovedLicense      = "no approved license"
	ReasonVehicleNotFound        = "vehicle not found"
	ReasonVehicleNotApproved     = "vehicle not approved"
	ReasonNoApprovedInsurance    = "no approved insurance"
	ReasonInsuranceRequirements  = "insurance does not meet requirements"
	FailurePersonalNotUnlimited  = "personal liability coverage must be unlimited"
	FailurePropertyBelowMinimum  = "property liability coverage below minimum"
	FailurePassengerBelowMinimum = "passenger injury coverage below minimum"
)

// PreconditionError reports why a permit cannot be issued. It is an
// expected outcome shown to the admin, not an infrastructure failure.
type PreconditionError struct {
	Reason   string
	Failures []string
}

func (e *PreconditionError) Error() string {
	if len(e.Failures) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Failures, ", ")
}
