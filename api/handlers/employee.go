package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/commute-permit-api/api"
	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
)

// Employee exists for dependency injection
type Employee struct {
	DB databases.EmployeeDatabase
}

// CreateEmployeeHandler registers a new employee
func (e Employee) CreateEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Role == models.RoleAdmin && req.Password == "" {
		config.ErrorStatus("admins need a password", http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	email := strings.TrimSpace(strings.ToLower(req.Email))
	_, err := e.DB.FindByEmail(ctx, email)
	if err == nil {
		config.ErrorStatus("email is already registered", http.StatusConflict, w, nil)
		return
	}
	if !errors.Is(err, databases.ErrNotFound) {
		config.ErrorStatus("failed to check email", http.StatusInternalServerError, w, err)
		return
	}

	employee := models.Employee{
		Name:       models.FlexibleName(strings.TrimSpace(req.Name)),
		Email:      email,
		Department: req.Department,
		Role:       req.Role,
	}
	if employee.Role == "" {
		employee.Role = models.RoleEmployee
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
			return
		}
		employee.PasswordHash = string(hash)
	}

	id, err := e.DB.InsertOne(ctx, employee)
	if err != nil {
		config.ErrorStatus("failed to create employee", http.StatusInternalServerError, w, err)
		return
	}
	employee.ID = id
	writeJSON(w, http.StatusCreated, employee)
}

// EmployeeHandler returns an employee by id
func (e Employee) EmployeeHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["employee_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	employee, err := e.DB.FindOne(ctx, id)
	if err == nil && employee.DeletedFlag {
		err = databases.ErrNotFound
	}
	if err != nil {
		config.ErrorStatus("failed to get employee by ID", lookupStatus(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, employee)
}

// EmployeesHandler lists employees, optionally filtered by department
func (e Employee) EmployeesHandler(w http.ResponseWriter, r *http.Request) {
	preds := []databases.Predicate{databases.NotDeleted()}
	if dept := r.URL.Query().Get("department"); dept != "" {
		preds = append(preds, databases.Eq("department", dept))
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	employees, err := e.DB.Find(ctx, databases.Where(preds...).OrderBy("created_at", false))
	if err != nil {
		config.ErrorStatus("failed to get employees", http.StatusInternalServerError, w, err)
		return
	}
	if employees == nil {
		employees = []models.Employee{}
	}
	writeJSON(w, http.StatusOK, employees)
}
