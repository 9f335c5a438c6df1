package models

// PreconditionResponse is returned when a permit cannot be issued
type PreconditionResponse struct {
	Reason   string   `json:"reason"`
	Failures []string `json:"failures,omitempty"`
}

// HealthCheckResponse is returned by the health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
