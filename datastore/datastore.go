/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/genericstore/storagemodels"
)

// Provider is the capability contract every backend adapter implements.
// Connecting is the job of the factory registered with package registry.
type Provider interface {
	// Name identifies the adapter in logs and errors.
	Name() string

	// Get reads the record addressed by q. It returns nil, nil when absent.
	Get(ctx context.Context, q storagemodels.QueryContext) (storagemodels.Record, error)

	// Put creates the record or fully replaces it.
	Put(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error

	// Update modifies only the fields present in record.
	Update(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error

	// Delete removes the record; deleting an absent key is not an error.
	Delete(ctx context.Context, q storagemodels.QueryContext) error

	// BatchGet returns the found records grouped by table. Missing records are omitted.
	BatchGet(ctx context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error)

	// BatchWrite applies the intents in caller order without atomicity.
	BatchWrite(ctx context.Context, intents []storagemodels.WriteIntent) error

	// Scan filters the whole table by conditions.
	Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (ResultSet, error)

	// Query is Scan restricted to conditions on the key structure.
	Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (ResultSet, error)

	// Close releases the provider's handle on shared connections.
	Close() error
}

// ResultSet is a forward-only, non-restartable cursor over records.
// It is not safe for concurrent use.
type ResultSet interface {
	// HasNext may fetch and buffer the next page.
	HasNext(ctx context.Context) (bool, error)
	// Next fails with an operation error when nothing is buffered.
	Next(ctx context.Context) (storagemodels.Record, error)
}

// Cursor is an opaque continuation token. nil means no further pages.
type Cursor any

// Page is one bounded backend response.
type Page struct {
	Records []storagemodels.Record
	Next    Cursor
}

// PageFetcher loads the page that starts at cursor; nil asks for the first page.
type PageFetcher func(ctx context.Context, cursor Cursor) (Page, error)
