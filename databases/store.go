package databases

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Table names shared by every record store backend
const (
	EmployeeTable            = "employees"
	LicenseTable             = "licenses"
	VehicleTable             = "vehicles"
	InsuranceTable           = "insurances"
	PermitTable              = "permits"
	NotificationHistoryTable = "notification_history"
)

// ErrNotFound is returned when a record lookup by id matches nothing
var ErrNotFound = errors.New("record not found")

// Operator is a comparison applied by a Predicate
type Operator string

// Supported predicate operators
const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpIn  Operator = "in"
)

// Predicate is a single field comparison. Backends translate predicates to
// their native filter syntax.
type Predicate struct {
	Field string
	Op    Operator
	Value interface{}
}

// Eq matches records whose field equals v
func Eq(field string, v interface{}) Predicate { return Predicate{Field: field, Op: OpEq, Value: v} }

// Ne matches records whose field differs from v, including records missing the field
func Ne(field string, v interface{}) Predicate { return Predicate{Field: field, Op: OpNe, Value: v} }

// Lt matches records whose field is lower than v
func Lt(field string, v interface{}) Predicate { return Predicate{Field: field, Op: OpLt, Value: v} }

// Lte matches records whose field is lower than or equal to v
func Lte(field string, v interface{}) Predicate { return Predicate{Field: field, Op: OpLte, Value: v} }

// Gt matches records whose field is greater than v
func Gt(field string, v interface{}) Predicate { return Predicate{Field: field, Op: OpGt, Value: v} }

// Gte matches records whose field is greater than or equal to v
func Gte(field string, v interface{}) Predicate { return Predicate{Field: field, Op: OpGte, Value: v} }

// In matches records whose field equals one of values
func In(field string, values ...interface{}) Predicate {
	return Predicate{Field: field, Op: OpIn, Value: values}
}

// NotDeleted excludes soft deleted records
func NotDeleted() Predicate { return Ne("deleted_flag", true) }

// Query selects records from a table
type Query struct {
	Where      []Predicate
	SortBy     string
	Descending bool
	Limit      int64
}

// Where builds a Query from predicates
func Where(preds ...Predicate) Query {
	return Query{Where: preds}
}

// OrderBy returns a copy of q sorted by field
func (q Query) OrderBy(field string, descending bool) Query {
	q.SortBy = field
	q.Descending = descending
	return q
}

// Fields is a partial update applied to a single record
type Fields map[string]interface{}

// RecordStore is generic CRUD over named tables
type RecordStore interface {
	// List decodes every record of table matching q into out, a pointer to a slice
	List(ctx context.Context, table string, q Query, out interface{}) error
	// Get decodes the record with the given id into out or returns ErrNotFound
	Get(ctx context.Context, table, id string, out interface{}) error
	// Create stores record and returns its id, assigning one when the record has none
	Create(ctx context.Context, table string, record interface{}) (string, error)
	// Update sets fields on the record with the given id and stamps updated_at
	Update(ctx context.Context, table, id string, fields Fields) error
	// Delete removes the record with the given id
	Delete(ctx context.Context, table, id string) error
}

// NewID returns a new opaque record id
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// toDocument converts a record to a bson.M and makes sure it carries an id
// and creation timestamps
func toDocument(record interface{}) (bson.M, string, error) {
	b, err := bson.Marshal(record)
	if err != nil {
		return nil, "", err
	}
	doc := bson.M{}
	if err := bson.Unmarshal(b, &doc); err != nil {
		return nil, "", err
	}
	id, _ := doc["_id"].(string)
	if id == "" {
		id = NewID()
		doc["_id"] = id
	}
	now := time.Now().UTC()
	for _, field := range []string{"created_at", "updated_at"} {
		if t, ok := doc[field].(primitive.DateTime); !ok || t.Time().IsZero() {
			doc[field] = primitive.NewDateTimeFromTime(now)
		}
	}
	return doc, id, nil
}

func withUpdatedAt(fields Fields) Fields {
	out := Fields{}
	for k, v := range fields {
		out[k] = v
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = time.Now().UTC()
	}
	return out
}
