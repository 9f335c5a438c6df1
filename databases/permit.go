package databases

// go generate: mockery --name PermitDatabase

import (
	"context"

	"github.com/linesmerrill/commute-permit-api/models"
)

// PermitDatabase contains the methods to use with the permit table
type PermitDatabase interface {
	FindOne(ctx context.Context, id string) (*models.Permit, error)
	FindByToken(ctx context.Context, token string) (*models.Permit, error)
	FindValidByVehicle(ctx context.Context, vehicleID string) ([]models.Permit, error)
	FindByEmployee(ctx context.Context, employeeID string) ([]models.Permit, error)
	InsertOne(ctx context.Context, permit models.Permit) (string, error)
	UpdateOne(ctx context.Context, id string, fields Fields) error
}

type permitDatabase struct {
	store RecordStore
}

// NewPermitDatabase initializes a new instance of permit database with the provided store
func NewPermitDatabase(store RecordStore) PermitDatabase {
	return &permitDatabase{store: store}
}

func (p *permitDatabase) FindOne(ctx context.Context, id string) (*models.Permit, error) {
	permit := &models.Permit{}
	if err := p.store.Get(ctx, PermitTable, id, permit); err != nil {
		return nil, err
	}
	return permit, nil
}

// FindByToken returns the permit carrying exactly token, or ErrNotFound
func (p *permitDatabase) FindByToken(ctx context.Context, token string) (*models.Permit, error) {
	var permits []models.Permit
	err := p.store.List(ctx, PermitTable, Query{Where: []Predicate{Eq("verification_token", token)}, Limit: 1}, &permits)
	if err != nil {
		return nil, err
	}
	if len(permits) == 0 {
		return nil, ErrNotFound
	}
	return &permits[0], nil
}

// FindValidByVehicle lists permits of the vehicle whose stored status is valid
func (p *permitDatabase) FindValidByVehicle(ctx context.Context, vehicleID string) ([]models.Permit, error) {
	var permits []models.Permit
	err := p.store.List(ctx, PermitTable, Where(Eq("vehicle_id", vehicleID), Eq("status", models.PermitValid)), &permits)
	return permits, err
}

func (p *permitDatabase) FindByEmployee(ctx context.Context, employeeID string) ([]models.Permit, error) {
	var permits []models.Permit
	err := p.store.List(ctx, PermitTable, Where(Eq("employee_id", employeeID)).OrderBy("issue_date", true), &permits)
	return permits, err
}

func (p *permitDatabase) InsertOne(ctx context.Context, permit models.Permit) (string, error) {
	return p.store.Create(ctx, PermitTable, permit)
}

func (p *permitDatabase) UpdateOne(ctx context.Context, id string, fields Fields) error {
	return p.store.Update(ctx, PermitTable, id, fields)
}
