package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/commute-permit-api/api"
	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
)

// Admin handles admin sign in
type Admin struct {
	DB   databases.EmployeeDatabase
	Auth *api.Auth
}

// AdminLoginHandler checks an admin's email and password and returns a JWT
func (h Admin) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	email := strings.TrimSpace(strings.ToLower(req.Email))
	admin, err := h.DB.FindByEmail(ctx, email)
	if err != nil || admin.DeletedFlag || !admin.IsAdmin() || admin.PasswordHash == "" {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, nil)
		return
	}

	token, expiresAt, err := h.Auth.IssueToken(*admin)
	if err != nil {
		config.ErrorStatus("failed to generate token", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("admin signed in", "employeeID", admin.ID)
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, ExpiresAt: expiresAt, Employee: *admin})
}
