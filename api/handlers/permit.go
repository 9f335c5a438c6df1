package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/commute-permit-api/api"
	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/models"
	"github.com/linesmerrill/commute-permit-api/permits"
)

// PermitService is the permit lifecycle used by the handlers
type PermitService interface {
	IssuePermit(ctx context.Context, employeeID, vehicleID string) (*models.Permit, error)
	GetPermit(ctx context.Context, permitID string) (*models.Permit, error)
	ListPermits(ctx context.Context, employeeID string) ([]models.Permit, error)
	RevokePermit(ctx context.Context, permitID string) (*models.Permit, error)
	DownloadPermit(ctx context.Context, permitID string) (*models.Permit, []byte, error)
	Verify(ctx context.Context, token string) (models.VerificationResult, error)
}

// Permit exists for dependency injection
type Permit struct {
	Service PermitService
}

// IssuePermitHandler issues a permit once all documents are approved
func (p Permit) IssuePermitHandler(w http.ResponseWriter, r *http.Request) {
	var req models.IssuePermitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	permit, err := p.Service.IssuePermit(r.Context(), req.EmployeeID, req.VehicleID)
	var precondition *permits.PreconditionError
	if errors.As(err, &precondition) {
		writeJSON(w, http.StatusUnprocessableEntity, models.PreconditionResponse{
			Reason:   precondition.Reason,
			Failures: precondition.Failures,
		})
		return
	}
	if err != nil {
		config.ErrorStatus("failed to issue permit", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, permit)
}

// PermitHandler returns a single permit
func (p Permit) PermitHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["permit_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	permit, err := p.Service.GetPermit(ctx, id)
	if err != nil {
		config.ErrorStatus("failed to get permit by ID", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, permit)
}

// PermitsByEmployeeHandler lists the permits of an employee
func (p Permit) PermitsByEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	employeeID := mux.Vars(r)["employee_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	list, err := p.Service.ListPermits(ctx, employeeID)
	if err != nil {
		config.ErrorStatus("failed to get permits", http.StatusInternalServerError, w, err)
		return
	}
	if list == nil {
		list = []models.Permit{}
	}
	writeJSON(w, http.StatusOK, list)
}

// RevokePermitHandler revokes a permit
func (p Permit) RevokePermitHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["permit_id"]

	permit, err := p.Service.RevokePermit(r.Context(), id)
	if err != nil {
		config.ErrorStatus("failed to revoke permit", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, permit)
}

// DownloadPermitHandler streams the permit PDF
func (p Permit) DownloadPermitHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["permit_id"]

	permit, data, err := p.Service.DownloadPermit(r.Context(), id)
	if err != nil {
		config.ErrorStatus("failed to download permit", lookupStatus(err), w, err)
		return
	}

	filename := permits.DownloadFilename(*permit)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", permits.ContentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// VerifyPermitHandler is the public lookup behind the QR code. Unknown,
// revoked and expired permits are reported in the body, not as errors.
func (p Permit) VerifyPermitHandler(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	result, err := p.Service.Verify(ctx, token)
	if err != nil {
		config.ErrorStatus("failed to verify permit", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
