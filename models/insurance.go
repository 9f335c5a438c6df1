package models

import "time"

// Insurance holds an insurance policy record
type Insurance struct {
	DocumentMeta      `bson:",inline"`
	VehicleID         string    `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty"`
	InsuranceCompany  string    `json:"insurance_company" bson:"insurance_company"`
	PolicyNumber      string    `json:"policy_number" bson:"policy_number"`
	CoverageStartDate time.Time `json:"coverage_start_date" bson:"coverage_start_date"`
	CoverageEndDate   time.Time `json:"coverage_end_date" bson:"coverage_end_date" validate:"required"`
	// LiabilityPersonalUnlimited is true when bodily injury liability has no cap
	LiabilityPersonalUnlimited bool   `json:"liability_personal_unlimited" bson:"liability_personal_unlimited"`
	LiabilityPropertyAmount    int64  `json:"liability_property_amount" bson:"liability_property_amount"`
	PassengerInjuryAmount      int64  `json:"passenger_injury_amount" bson:"passenger_injury_amount"`
	ImageKey                   string `json:"image_key,omitempty" bson:"image_key,omitempty"`
}

// Type returns DocumentTypeInsurance
func (i Insurance) Type() DocumentType { return DocumentTypeInsurance }

// ExpiresAt returns the coverage end date
func (i Insurance) ExpiresAt() time.Time { return i.CoverageEndDate }
