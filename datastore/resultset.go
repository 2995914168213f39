/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// ErrNoMoreRecords is wrapped by Next when the buffer is empty.
var ErrNoMoreRecords = errors.New("no more records")

// PagedResultSet adapts a PageFetcher to the ResultSet protocol.
type PagedResultSet struct {
	fetch     PageFetcher
	buffer    []storagemodels.Record
	cursor    Cursor
	exhausted bool
	pages     int
}

var _ ResultSet = (*PagedResultSet)(nil)

// NewPagedResultSet performs the initial fetch and returns the cursor.
func NewPagedResultSet(ctx context.Context, fetch PageFetcher) (*PagedResultSet, error) {
	rs := &PagedResultSet{fetch: fetch}
	if err := rs.load(ctx); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *PagedResultSet) load(ctx context.Context) error {
	page, err := rs.fetch(ctx, rs.cursor)
	if err != nil {
		return errors.Ensure("fetchPage", err)
	}
	rs.pages++
	rs.buffer = append(rs.buffer, page.Records...)
	rs.cursor = page.Next
	if rs.cursor == nil {
		rs.exhausted = true
	}
	return nil
}

// HasNext keeps fetching while the buffer is empty and a cursor remains,
// so empty pages in the middle of a scan do not end iteration.
func (rs *PagedResultSet) HasNext(ctx context.Context) (bool, error) {
	for len(rs.buffer) == 0 {
		if rs.exhausted {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, errors.Operation("hasNext", err)
		}
		if err := rs.load(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Next pops the next buffered record, fetching if needed.
func (rs *PagedResultSet) Next(ctx context.Context) (storagemodels.Record, error) {
	ok, err := rs.HasNext(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Operation("next", ErrNoMoreRecords)
	}
	rec := rs.buffer[0]
	rs.buffer[0] = nil
	rs.buffer = rs.buffer[1:]
	return rec, nil
}

// Pages reports how many pages have been fetched so far.
func (rs *PagedResultSet) Pages() int {
	return rs.pages
}

// SliceResultSet serves records that are already in memory.
type SliceResultSet struct {
	records []storagemodels.Record
}

var _ ResultSet = (*SliceResultSet)(nil)

func NewSliceResultSet(records []storagemodels.Record) *SliceResultSet {
	return &SliceResultSet{records: records}
}

func (rs *SliceResultSet) HasNext(context.Context) (bool, error) {
	return len(rs.records) > 0, nil
}

func (rs *SliceResultSet) Next(context.Context) (storagemodels.Record, error) {
	if len(rs.records) == 0 {
		return nil, errors.Operation("next", ErrNoMoreRecords)
	}
	rec := rs.records[0]
	rs.records = rs.records[1:]
	return rec, nil
}

// ForEach drains rs, stopping at the first error from rs or fn.
func ForEach(ctx context.Context, rs ResultSet, fn func(storagemodels.Record) error) error {
	for {
		ok, err := rs.HasNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rec, err := rs.Next(ctx)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Collect drains rs into a slice.
func Collect(ctx context.Context, rs ResultSet) ([]storagemodels.Record, error) {
	var out []storagemodels.Record
	err := ForEach(ctx, rs, func(rec storagemodels.Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}
