package models

import "time"

// DocumentType identifies one of the three approvable document categories
type DocumentType string

// Document categories
const (
	DocumentTypeLicense   DocumentType = "license"
	DocumentTypeVehicle   DocumentType = "vehicle"
	DocumentTypeInsurance DocumentType = "insurance"
)

// DocumentTypes lists every category in a stable order
var DocumentTypes = []DocumentType{DocumentTypeLicense, DocumentTypeVehicle, DocumentTypeInsurance}

// ApprovalStatus is the review state of a single document
type ApprovalStatus string

// Approval states
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// DocumentStatus is the internal lifecycle flag kept for older records
type DocumentStatus string

// Document lifecycle flags
const (
	DocumentTemporary DocumentStatus = "temporary"
	DocumentApproved  DocumentStatus = "approved"
)

// DocumentMeta holds the fields shared by licenses, vehicle registrations and
// insurance policies
type DocumentMeta struct {
	ID              string         `json:"id" bson:"_id,omitempty"`
	EmployeeID      string         `json:"employee_id" bson:"employee_id" validate:"required"`
	Status          DocumentStatus `json:"status" bson:"status"`
	ApprovalStatus  ApprovalStatus `json:"approval_status" bson:"approval_status"`
	RejectionReason string         `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty" bson:"approved_at,omitempty"`
	DeletedFlag     bool           `json:"deleted_flag" bson:"deleted_flag"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" bson:"updated_at"`
}

// Meta returns the shared document fields
func (m DocumentMeta) Meta() DocumentMeta {
	return m
}

// IsActiveApproved reports whether the document is approved and not soft deleted
func (m DocumentMeta) IsActiveApproved() bool {
	return !m.DeletedFlag && m.ApprovalStatus == ApprovalApproved
}

// Document is implemented by every approvable document type
type Document interface {
	Meta() DocumentMeta
	Type() DocumentType
	ExpiresAt() time.Time
}

// ApprovalRequest is the body of an approve or reject call
type ApprovalRequest struct {
	ApprovalStatus  ApprovalStatus `json:"approval_status" validate:"required,oneof=approved rejected"`
	RejectionReason string         `json:"rejection_reason" validate:"required_if=ApprovalStatus rejected"`
}
