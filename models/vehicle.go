package models

import (
	"strings"
	"time"
)

// Vehicle holds a vehicle registration record. An employee may register
// several vehicles.
type Vehicle struct {
	DocumentMeta             `bson:",inline"`
	VehicleNumber            string    `json:"vehicle_number" bson:"vehicle_number" validate:"required"`
	Manufacturer             string    `json:"manufacturer" bson:"manufacturer"`
	ModelName                string    `json:"model_name" bson:"model_name"`
	Color                    string    `json:"color,omitempty" bson:"color,omitempty"`
	InspectionExpirationDate time.Time `json:"inspection_expiration_date" bson:"inspection_expiration_date" validate:"required"`
	ImageKey                 string    `json:"image_key,omitempty" bson:"image_key,omitempty"`
}

// Type returns DocumentTypeVehicle
func (v Vehicle) Type() DocumentType { return DocumentTypeVehicle }

// ExpiresAt returns the inspection expiration date
func (v Vehicle) ExpiresAt() time.Time { return v.InspectionExpirationDate }

// DisplayModel joins manufacturer and model name, skipping empty parts
func (v Vehicle) DisplayModel() string {
	return strings.TrimSpace(strings.TrimSpace(v.Manufacturer) + " " + strings.TrimSpace(v.ModelName))
}
