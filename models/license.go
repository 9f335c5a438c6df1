package models

import "time"

// License holds a driver's license record. Each employee has at most one
// active license.
type License struct {
	DocumentMeta   `bson:",inline"`
	LicenseNumber  string    `json:"license_number" bson:"license_number"`
	LicenseType    string    `json:"license_type,omitempty" bson:"license_type,omitempty"`
	ExpirationDate time.Time `json:"expiration_date" bson:"expiration_date" validate:"required"`
	ImageKey       string    `json:"image_key,omitempty" bson:"image_key,omitempty"`
}

// Type returns DocumentTypeLicense
func (l License) Type() DocumentType { return DocumentTypeLicense }

// ExpiresAt returns the license expiration date
func (l License) ExpiresAt() time.Time { return l.ExpirationDate }
