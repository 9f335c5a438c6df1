package databases

import (
	"context"
	"time"
)

// Observer receives the timing of every record store call
type Observer func(ctx context.Context, operation, table string, duration time.Duration, err error)

type observedStore struct {
	next    RecordStore
	observe Observer
}

// WithObserver wraps store so every call is reported to observe
func WithObserver(store RecordStore, observe Observer) RecordStore {
	return &observedStore{next: store, observe: observe}
}

func (o *observedStore) List(ctx context.Context, table string, q Query, out interface{}) error {
	start := time.Now()
	err := o.next.List(ctx, table, q, out)
	o.observe(ctx, "list", table, time.Since(start), err)
	return err
}

func (o *observedStore) Get(ctx context.Context, table, id string, out interface{}) error {
	start := time.Now()
	err := o.next.Get(ctx, table, id, out)
	o.observe(ctx, "get", table, time.Since(start), err)
	return err
}

func (o *observedStore) Create(ctx context.Context, table string, record interface{}) (string, error) {
	start := time.Now()
	id, err := o.next.Create(ctx, table, record)
	o.observe(ctx, "create", table, time.Since(start), err)
	return id, err
}

func (o *observedStore) Update(ctx context.Context, table, id string, fields Fields) error {
	start := time.Now()
	err := o.next.Update(ctx, table, id, fields)
	o.observe(ctx, "update", table, time.Since(start), err)
	return err
}

func (o *observedStore) Delete(ctx context.Context, table, id string) error {
	start := time.Now()
	err := o.next.Delete(ctx, table, id)
	o.observe(ctx, "delete", table, time.Since(start), err)
	return err
}
