package databases

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRecordStore struct {
	db DatabaseHelper
}

// NewMongoRecordStore returns a RecordStore backed by the given mongo database
func NewMongoRecordStore(db DatabaseHelper) RecordStore {
	return &mongoRecordStore{db: db}
}

var mongoOperators = map[Operator]string{
	OpEq:  "$eq",
	OpNe:  "$ne",
	OpLt:  "$lt",
	OpLte: "$lte",
	OpGt:  "$gt",
	OpGte: "$gte",
	OpIn:  "$in",
}

// mongoFilter translates predicates to a bson filter. Several predicates on
// the same field are merged into one operator document.
func mongoFilter(preds []Predicate) (bson.M, error) {
	filter := bson.M{}
	for _, p := range preds {
		op, ok := mongoOperators[p.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %q", p.Op)
		}
		cond, ok := filter[p.Field].(bson.M)
		if !ok {
			cond = bson.M{}
			filter[p.Field] = cond
		}
		cond[op] = p.Value
	}
	return filter, nil
}

func (s *mongoRecordStore) List(ctx context.Context, table string, q Query, out interface{}) error {
	filter, err := mongoFilter(q.Where)
	if err != nil {
		return err
	}
	opts := options.Find()
	if q.SortBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.SortBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := s.db.Collection(table).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	return cur.All(ctx, out)
}

func (s *mongoRecordStore) Get(ctx context.Context, table, id string, out interface{}) error {
	err := s.db.Collection(table).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *mongoRecordStore) Create(ctx context.Context, table string, record interface{}) (string, error) {
	doc, id, err := toDocument(record)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Collection(table).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return id, nil
}

func (s *mongoRecordStore) Update(ctx context.Context, table, id string, fields Fields) error {
	matched, err := s.db.Collection(table).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(withUpdatedAt(fields))})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoRecordStore) Delete(ctx context.Context, table, id string) error {
	deleted, err := s.db.Collection(table).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}
