package databases

// go generate: mockery --name EmployeeDatabase

import (
	"context"

	"github.com/linesmerrill/commute-permit-api/models"
)

// EmployeeDatabase contains the methods to use with the employee table
type EmployeeDatabase interface {
	FindOne(ctx context.Context, id string) (*models.Employee, error)
	FindByEmail(ctx context.Context, email string) (*models.Employee, error)
	Find(ctx context.Context, q Query) ([]models.Employee, error)
	FindAdmins(ctx context.Context) ([]models.Employee, error)
	InsertOne(ctx context.Context, employee models.Employee) (string, error)
	UpdateOne(ctx context.Context, id string, fields Fields) error
}

type employeeDatabase struct {
	store RecordStore
}

// NewEmployeeDatabase initializes a new instance of employee database with the provided store
func NewEmployeeDatabase(store RecordStore) EmployeeDatabase {
	return &employeeDatabase{store: store}
}

func (e *employeeDatabase) FindOne(ctx context.Context, id string) (*models.Employee, error) {
	employee := &models.Employee{}
	if err := e.store.Get(ctx, EmployeeTable, id, employee); err != nil {
		return nil, err
	}
	return employee, nil
}

func (e *employeeDatabase) FindByEmail(ctx context.Context, email string) (*models.Employee, error) {
	employees, err := e.Find(ctx, Query{Where: []Predicate{Eq("email", email), NotDeleted()}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 {
		return nil, ErrNotFound
	}
	return &employees[0], nil
}

func (e *employeeDatabase) Find(ctx context.Context, q Query) ([]models.Employee, error) {
	var employees []models.Employee
	if err := e.store.List(ctx, EmployeeTable, q, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

// FindAdmins returns every non deleted admin
func (e *employeeDatabase) FindAdmins(ctx context.Context) ([]models.Employee, error) {
	return e.Find(ctx, Where(Eq("role", models.RoleAdmin), NotDeleted()))
}

func (e *employeeDatabase) InsertOne(ctx context.Context, employee models.Employee) (string, error) {
	return e.store.Create(ctx, EmployeeTable, employee)
}

func (e *employeeDatabase) UpdateOne(ctx context.Context, id string, fields Fields) error {
	return e.store.Update(ctx, EmployeeTable, id, fields)
}
