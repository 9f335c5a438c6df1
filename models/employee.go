package models

import "time"

// Employee roles
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// Employee holds the structure for the employees collection
type Employee struct {
	ID           string       `json:"id" bson:"_id,omitempty"`
	Name         FlexibleName `json:"name" bson:"name" validate:"required"`
	Email        string       `json:"email" bson:"email" validate:"required,email"`
	Department   string       `json:"department,omitempty" bson:"department,omitempty"`
	Role         string       `json:"role" bson:"role" validate:"omitempty,oneof=admin employee"`
	PasswordHash string       `json:"-" bson:"password_hash,omitempty"`
	DeletedFlag  bool         `json:"deleted_flag" bson:"deleted_flag"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`
}

// IsAdmin reports whether the employee reviews documents
func (e Employee) IsAdmin() bool {
	return e.Role == RoleAdmin
}

// CreateEmployeeRequest is the admin request body for registering an employee
type CreateEmployeeRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department"`
	Role       string `json:"role" validate:"omitempty,oneof=admin employee"`
	// Password is only required for admins, who sign in to review documents
	Password string `json:"password" validate:"omitempty,min=8"`
}

// LoginRequest is the body of the admin login call
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the signed admin token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Employee  Employee  `json:"employee"`
}
