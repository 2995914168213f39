/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package genericstore

import (
	"context"

	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/storagemodels"
)

// Request addresses one operation on a Store. It is a value; every With
// call returns a copy, so a Request can be shared and extended freely.
//
//	err := store.Table("users").WithKey("id", "u1").Put(ctx, rec)
type Request struct {
	store *Store
	q     storagemodels.QueryContext
}

// Table starts a Request on table.
func (s *Store) Table(table string) Request {
	return Request{store: s, q: storagemodels.NewQuery(table)}
}

// On starts a Request from an existing QueryContext.
func (s *Store) On(q storagemodels.QueryContext) Request {
	return Request{store: s, q: q}
}

func (r Request) WithKey(field, value string) Request {
	r.q = r.q.WithKey(field, value)
	return r
}

func (r Request) WithKeyName(field string) Request {
	r.q = r.q.WithKeyName(field)
	return r
}

func (r Request) WithSubkey(field, value string) Request {
	r.q = r.q.WithSubkey(field, value)
	return r
}

func (r Request) WithSubkeyName(field string) Request {
	r.q = r.q.WithSubkeyName(field)
	return r
}

// QueryContext returns the address the Request carries.
func (r Request) QueryContext() storagemodels.QueryContext { return r.q }

func (r Request) Get(ctx context.Context) (storagemodels.Record, error) {
	return r.store.Get(ctx, r.q)
}

func (r Request) Put(ctx context.Context, record storagemodels.Record) error {
	return r.store.Put(ctx, r.q, record)
}

func (r Request) Update(ctx context.Context, record storagemodels.Record) error {
	return r.store.Update(ctx, r.q, record)
}

func (r Request) Delete(ctx context.Context) error {
	return r.store.Delete(ctx, r.q)
}

func (r Request) Scan(ctx context.Context, conditions storagemodels.Conditions, fields ...string) (datastore.ResultSet, error) {
	return r.store.Scan(ctx, r.q, conditions, fields)
}

func (r Request) Query(ctx context.Context, conditions storagemodels.Conditions, fields ...string) (datastore.ResultSet, error) {
	return r.store.Query(ctx, r.q, conditions, fields)
}

func (r Request) PutAsync(ctx context.Context, record storagemodels.Record, cb ...Callback) *Future {
	return r.store.PutAsync(ctx, r.q, record, cb...)
}

func (r Request) UpdateAsync(ctx context.Context, record storagemodels.Record, cb ...Callback) *Future {
	return r.store.UpdateAsync(ctx, r.q, record, cb...)
}

func (r Request) DeleteAsync(ctx context.Context, cb ...Callback) *Future {
	return r.store.DeleteAsync(ctx, r.q, cb...)
}
