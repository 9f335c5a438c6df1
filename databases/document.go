package databases

// go generate: mockery --name DocumentDatabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linesmerrill/commute-permit-api/models"
)

// DocumentDatabase contains the methods to use with one approvable document table
type DocumentDatabase[T models.Document] interface {
	FindOne(ctx context.Context, id string) (*T, error)
	Find(ctx context.Context, q Query) ([]T, error)
	FindActive(ctx context.Context, preds ...Predicate) ([]T, error)
	InsertOne(ctx context.Context, doc T) (string, error)
	UpdateOne(ctx context.Context, id string, fields Fields) error
	SoftDelete(ctx context.Context, id string) error
	SetApproval(ctx context.Context, id string, status models.ApprovalStatus, reason string) error
}

// LicenseDatabase contains the methods to use with the license table
type LicenseDatabase = DocumentDatabase[models.License]

// VehicleDatabase contains the methods to use with the vehicle table
type VehicleDatabase = DocumentDatabase[models.Vehicle]

// InsuranceDatabase contains the methods to use with the insurance table
type InsuranceDatabase = DocumentDatabase[models.Insurance]

type documentDatabase[T models.Document] struct {
	store RecordStore
	table string
	now   func() time.Time
}

// NewLicenseDatabase initializes a new instance of license database with the provided store
func NewLicenseDatabase(store RecordStore) LicenseDatabase {
	return &documentDatabase[models.License]{store: store, table: LicenseTable, now: time.Now}
}

// NewVehicleDatabase initializes a new instance of vehicle database with the provided store
func NewVehicleDatabase(store RecordStore) VehicleDatabase {
	return &documentDatabase[models.Vehicle]{store: store, table: VehicleTable, now: time.Now}
}

// NewInsuranceDatabase initializes a new instance of insurance database with the provided store
func NewInsuranceDatabase(store RecordStore) InsuranceDatabase {
	return &documentDatabase[models.Insurance]{store: store, table: InsuranceTable, now: time.Now}
}

// FindOne returns the document with the given id, soft deleted or not
func (d *documentDatabase[T]) FindOne(ctx context.Context, id string) (*T, error) {
	var doc T
	if err := d.store.Get(ctx, d.table, id, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *documentDatabase[T]) Find(ctx context.Context, q Query) ([]T, error) {
	var docs []T
	if err := d.store.List(ctx, d.table, q, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// FindActive lists non deleted documents matching preds
func (d *documentDatabase[T]) FindActive(ctx context.Context, preds ...Predicate) ([]T, error) {
	return d.Find(ctx, Where(append([]Predicate{NotDeleted()}, preds...)...))
}

func (d *documentDatabase[T]) InsertOne(ctx context.Context, doc T) (string, error) {
	return d.store.Create(ctx, d.table, doc)
}

func (d *documentDatabase[T]) UpdateOne(ctx context.Context, id string, fields Fields) error {
	return d.store.Update(ctx, d.table, id, fields)
}

func (d *documentDatabase[T]) SoftDelete(ctx context.Context, id string) error {
	return d.store.Update(ctx, d.table, id, Fields{
		"deleted_flag": true,
		"deleted_at":   d.now().UTC(),
	})
}

// SetApproval moves a non deleted document to approved or rejected
func (d *documentDatabase[T]) SetApproval(ctx context.Context, id string, status models.ApprovalStatus, reason string) error {
	doc, err := d.FindOne(ctx, id)
	if err != nil {
		return err
	}
	if (*doc).Meta().DeletedFlag {
		return ErrNotFound
	}
	fields := Fields{"approval_status": status}
	switch status {
	case models.ApprovalApproved:
		fields["status"] = models.DocumentApproved
		fields["approved_at"] = d.now().UTC()
		fields["rejection_reason"] = ""
	case models.ApprovalRejected:
		if reason == "" {
			return errors.New("rejection reason is required")
		}
		fields["rejection_reason"] = reason
	default:
		return fmt.Errorf("unsupported approval status %q", status)
	}
	return d.store.Update(ctx, d.table, id, fields)
}
