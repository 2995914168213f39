/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// DefaultPageSize bounds scan pages when a provider has no page_size.
const DefaultPageSize = 25

// PrepareWrite validates the address and returns a normalized copy of
// record carrying the key and subkey fields of q.
func PrepareWrite(op string, q storagemodels.QueryContext, record storagemodels.Record) (storagemodels.Record, error) {
	if err := q.ValidateKey(op); err != nil {
		return nil, err
	}
	norm, err := record.Normalize()
	if err != nil {
		return nil, errors.Operation(op, err).WithTarget(q.Table, q.KeyValue, q.SubkeyValue).AsPermanent()
	}
	return q.Stamp(norm), nil
}

// PrepareScan validates a scan target and normalizes its conditions.
func PrepareScan(q storagemodels.QueryContext, conditions storagemodels.Conditions) (storagemodels.Conditions, error) {
	if err := q.ValidateTable("scan"); err != nil {
		return nil, err
	}
	return conditions.Normalize()
}

// PrepareQuery is PrepareScan restricted to key structure conditions.
func PrepareQuery(q storagemodels.QueryContext, conditions storagemodels.Conditions) (storagemodels.Conditions, error) {
	norm, err := conditions.Normalize()
	if err != nil {
		return nil, err
	}
	if err := storagemodels.ValidateKeyConditions(q, norm); err != nil {
		return nil, err
	}
	return norm, nil
}

// Project returns rec reduced to fields, or rec itself when fields is empty.
func Project(rec storagemodels.Record, fields []string) storagemodels.Record {
	if len(fields) == 0 {
		return rec
	}
	return rec.Project(fields)
}
