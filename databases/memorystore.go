package databases

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryStore keeps records as bson documents so decoding behaves the same
// as the mongo backend. It backs local runs and tests.
type memoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	order []string
	docs  map[string]bson.M
}

// NewMemoryStore returns an empty in-process RecordStore
func NewMemoryStore() RecordStore {
	return &memoryStore{tables: map[string]*memoryTable{}}
}

func (s *memoryStore) table(name string) *memoryTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memoryTable{docs: map[string]bson.M{}}
		s.tables[name] = t
	}
	return t
}

func (s *memoryStore) List(ctx context.Context, table string, q Query, out interface{}) error {
	preds := make([]Predicate, len(q.Where))
	for i, p := range q.Where {
		v, err := normalizeValue(p.Value)
		if err != nil {
			return err
		}
		preds[i] = Predicate{Field: p.Field, Op: p.Op, Value: v}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []bson.M
	if t, ok := s.tables[table]; ok {
		for _, id := range t.order {
			doc := t.docs[id]
			ok, err := matchAll(doc, preds)
			if err != nil {
				return err
			}
			if ok {
				matched = append(matched, doc)
			}
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, aok := lookup(matched[i], q.SortBy)
			b, bok := lookup(matched[j], q.SortBy)
			if !aok || !bok {
				// missing values sort last in both directions
				return aok && !bok
			}
			c, _ := compareValues(a, b)
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && int64(len(matched)) > q.Limit {
		matched = matched[:q.Limit]
	}
	return decodeAll(matched, out)
}

func (s *memoryStore) Get(ctx context.Context, table, id string, out interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[table]
	if !ok {
		return ErrNotFound
	}
	doc, ok := t.docs[id]
	if !ok {
		return ErrNotFound
	}
	b, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(b, out)
}

func (s *memoryStore) Create(ctx context.Context, table string, record interface{}) (string, error) {
	doc, id, err := toDocument(record)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	if _, exists := t.docs[id]; exists {
		return "", fmt.Errorf("duplicate id %s in %s", id, table)
	}
	t.docs[id] = doc
	t.order = append(t.order, id)
	return id, nil
}

func (s *memoryStore) Update(ctx context.Context, table, id string, fields Fields) error {
	b, err := bson.Marshal(bson.M(withUpdatedAt(fields)))
	if err != nil {
		return err
	}
	set := bson.M{}
	if err := bson.Unmarshal(b, &set); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.table(table).docs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range set {
		doc[k] = v
	}
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	if _, ok := t.docs[id]; !ok {
		return ErrNotFound
	}
	delete(t.docs, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func decodeAll(docs []bson.M, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("out must be a pointer to a slice, got %T", out)
	}
	slice := reflect.MakeSlice(rv.Elem().Type(), 0, len(docs))
	elemType := rv.Elem().Type().Elem()
	for _, doc := range docs {
		b, err := bson.Marshal(doc)
		if err != nil {
			return err
		}
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(b, elem.Interface()); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	rv.Elem().Set(slice)
	return nil
}

// normalizeValue converts a Go value to the representation it has once
// stored, e.g. time.Time becomes primitive.DateTime
func normalizeValue(v interface{}) (interface{}, error) {
	b, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc["v"], nil
}

func lookup(doc bson.M, field string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchAll(doc bson.M, preds []Predicate) (bool, error) {
	for _, p := range preds {
		ok, err := match(doc, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func match(doc bson.M, p Predicate) (bool, error) {
	v, present := lookup(doc, p.Field)
	switch p.Op {
	case OpEq:
		return present && equalValues(v, p.Value), nil
	case OpNe:
		return !present || !equalValues(v, p.Value), nil
	case OpIn:
		values, ok := p.Value.(primitive.A)
		if !ok {
			return false, fmt.Errorf("in operator needs a list, got %T", p.Value)
		}
		if !present {
			return false, nil
		}
		for _, candidate := range values {
			if equalValues(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpLt, OpLte, OpGt, OpGte:
		if !present {
			return false, nil
		}
		c, ok := compareValues(v, p.Value)
		if !ok {
			return false, nil
		}
		switch p.Op {
		case OpLt:
			return c < 0, nil
		case OpLte:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported operator %q", p.Op)
}

func equalValues(a, b interface{}) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two stored values of the same family. ok is false
// when the values cannot be ordered against each other.
func compareValues(a, b interface{}) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case primitive.DateTime:
		y, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}
