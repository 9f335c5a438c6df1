package models

import "time"

// PermitStatus is the stored status of a permit. Date based expiry is
// computed when the permit is read and never written back.
type PermitStatus string

// Permit statuses
const (
	PermitValid   PermitStatus = "valid"
	PermitExpired PermitStatus = "expired"
	PermitRevoked PermitStatus = "revoked"
)

// Permit holds the structure for the permits collection
type Permit struct {
	ID                string       `json:"id" bson:"_id,omitempty"`
	EmployeeID        string       `json:"employee_id" bson:"employee_id"`
	EmployeeName      string       `json:"employee_name" bson:"employee_name"`
	VehicleID         string       `json:"vehicle_id" bson:"vehicle_id"`
	VehicleNumber     string       `json:"vehicle_number" bson:"vehicle_number"`
	VehicleModel      string       `json:"vehicle_model" bson:"vehicle_model"`
	IssueDate         time.Time    `json:"issue_date" bson:"issue_date"`
	ExpirationDate    time.Time    `json:"expiration_date" bson:"expiration_date"`
	PermitFileKey     string       `json:"permit_file_key" bson:"permit_file_key"`
	VerificationToken string       `json:"verification_token" bson:"verification_token"`
	Status            PermitStatus `json:"status" bson:"status"`
	CreatedAt         time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" bson:"updated_at"`
}

// IssuePermitRequest is the admin request body for issuing a permit
type IssuePermitRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	VehicleID  string `json:"vehicle_id" validate:"required"`
}

// PermitSummary is the public view of a permit returned by verification
type PermitSummary struct {
	EmployeeName   string `json:"employee_name"`
	VehicleNumber  string `json:"vehicle_number"`
	VehicleModel   string `json:"vehicle_model"`
	IssueDate      string `json:"issue_date"`
	ExpirationDate string `json:"expiration_date"`
	Status         string `json:"status"`
}

// VerificationResult is the response of the public verification endpoint
type VerificationResult struct {
	Valid   bool           `json:"valid"`
	Permit  *PermitSummary `json:"permit,omitempty"`
	Message string         `json:"message"`
}
