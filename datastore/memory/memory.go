/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package memory provides an in-process Provider with failure injection,
// used as a cache tier and as the backend of facade tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const ProviderName = "memory"

func init() {
	registry.RegisterProvider(ProviderName, Connect)
}

// FailureFunc is consulted before every operation; a non-nil result is
// returned instead of running it.
type FailureFunc func(op string, q storagemodels.QueryContext) error

// Provider keeps each table in an ordered map keyed by key[::subkey].
type Provider struct {
	mu       sync.RWMutex
	name     string
	tables   map[string]*treemap.Map
	pageSize int
	logger   *zap.Logger

	getError    error
	putError    error
	updateError error
	deleteError error
	failureFunc FailureFunc
}

var _ datastore.Provider = (*Provider)(nil)

// New creates an empty provider.
func New() *Provider {
	return &Provider{
		name:     ProviderName,
		tables:   make(map[string]*treemap.Map),
		pageSize: datastore.DefaultPageSize,
		logger:   zap.L(),
	}
}

// Connect builds a provider from configuration. Recognized keys: name, page_size.
func Connect(_ context.Context, cfg config.ProviderConfig) (datastore.Provider, error) {
	pageSize, err := cfg.IntDefault("page_size", datastore.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	return New().WithName(cfg.Name()).WithPageSize(pageSize), nil
}

// WithName sets the name reported in logs and errors
func (m *Provider) WithName(name string) *Provider {
	if name != "" {
		m.name = name
	}
	return m
}

// WithPageSize sets how many entries a scan page examines
func (m *Provider) WithPageSize(n int) *Provider {
	if n > 0 {
		m.pageSize = n
	}
	return m
}

// WithLogger sets the logger
func (m *Provider) WithLogger(logger *zap.Logger) *Provider {
	m.logger = logger
	return m
}

// WithGetError makes Get operations return an error
func (m *Provider) WithGetError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getError = err
	return m
}

// WithPutError makes Put operations return an error
func (m *Provider) WithPutError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putError = err
	return m
}

// WithUpdateError makes Update operations return an error
func (m *Provider) WithUpdateError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateError = err
	return m
}

// WithDeleteError makes Delete operations return an error
func (m *Provider) WithDeleteError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteError = err
	return m
}

// WithFailureFunc installs a hook that can fail any operation
func (m *Provider) WithFailureFunc(f FailureFunc) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureFunc = f
	return m
}

func (m *Provider) Name() string { return m.name }

func (m *Provider) injected(op string, q storagemodels.QueryContext, opErr error) error {
	m.mu.RLock()
	f := m.failureFunc
	m.mu.RUnlock()
	err := opErr
	if err == nil && f != nil {
		err = f(op, q)
	}
	if err == nil {
		return nil
	}
	m.logger.Debug("injected failure", zap.String("provider", m.name), zap.String("op", op), zap.String("table", q.Table), zap.Error(err))
	return errors.Operation(op, err).WithProvider(m.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue)
}

func (m *Provider) configuredError(field *error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *field
}

// table returns the map for name, creating it when create is set.
// Callers hold m.mu.
func (m *Provider) table(name string, create bool) *treemap.Map {
	t, ok := m.tables[name]
	if !ok && create {
		t = treemap.NewWithStringComparator()
		m.tables[name] = t
	}
	return t
}

// Get retrieves a record by key
func (m *Provider) Get(_ context.Context, q storagemodels.QueryContext) (storagemodels.Record, error) {
	if err := q.ValidateKey("get"); err != nil {
		return nil, err
	}
	if err := m.injected("get", q, m.configuredError(&m.getError)); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.table(q.Table, false)
	if t == nil {
		return nil, nil
	}
	v, ok := t.Get(q.CompositeKey())
	if !ok {
		return nil, nil
	}
	return v.(storagemodels.Record).Clone(), nil
}

// Put stores a record, replacing any previous version
func (m *Provider) Put(_ context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("put", q, record)
	if err != nil {
		return err
	}
	if err := m.injected("put", q, m.configuredError(&m.putError)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(q.Table, true).Put(q.CompositeKey(), rec)
	return nil
}

// Update merges the supplied fields into the stored record. A missing
// record is created from the supplied fields.
func (m *Provider) Update(_ context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("update", q, record)
	if err != nil {
		return err
	}
	if err := m.injected("update", q, m.configuredError(&m.updateError)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(q.Table, true)
	key := q.CompositeKey()
	if v, ok := t.Get(key); ok {
		rec = v.(storagemodels.Record).Merge(rec)
	}
	t.Put(key, rec)
	return nil
}

// Delete removes a record by key
func (m *Provider) Delete(_ context.Context, q storagemodels.QueryContext) error {
	if err := q.ValidateKey("delete"); err != nil {
		return err
	}
	if err := m.injected("delete", q, m.configuredError(&m.deleteError)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.table(q.Table, false); t != nil {
		t.Remove(q.CompositeKey())
	}
	return nil
}

// BatchGet reads every addressed record; missing ones are omitted.
func (m *Provider) BatchGet(ctx context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error) {
	out := make(map[string][]storagemodels.Record)
	for _, c := range conditions {
		q, err := c.Query()
		if err != nil {
			return nil, err
		}
		if err := m.injected("batchGet", q, nil); err != nil {
			return nil, err
		}
		rec, err := m.Get(ctx, q)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[q.Table] = append(out[q.Table], rec)
		}
	}
	return out, nil
}

// BatchWrite applies intents in order and stops at the first failure.
func (m *Provider) BatchWrite(ctx context.Context, intents []storagemodels.WriteIntent) error {
	for _, w := range intents {
		q, err := w.Query()
		if err != nil {
			return err
		}
		if err := m.injected("batchWrite", q, nil); err != nil {
			return err
		}
		switch w.Action {
		case storagemodels.ActionDelete:
			err = m.Delete(ctx, q)
		default:
			err = m.Put(ctx, q, w.Data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Scan pages through the table in key order, pageSize entries at a time.
// Filtering happens after paging, so a page may be empty while more remain.
func (m *Provider) Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareScan(q, conditions)
	if err != nil {
		return nil, err
	}
	if err := m.injected("scan", q, nil); err != nil {
		return nil, err
	}
	return datastore.NewPagedResultSet(ctx, m.fetcher("scan", q, conds, fields, ""))
}

// Query scans only the key range of the requested key value.
func (m *Provider) Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareQuery(q, conditions)
	if err != nil {
		return nil, err
	}
	if err := m.injected("query", q, nil); err != nil {
		return nil, err
	}
	prefix := storagemodels.ValueString(conds[q.KeyField].Value)
	return datastore.NewPagedResultSet(ctx, m.fetcher("query", q, conds, fields, prefix))
}

// fetcher pages over entries whose composite key starts with prefix. The
// cursor is the last composite key examined.
func (m *Provider) fetcher(op string, q storagemodels.QueryContext, conds storagemodels.Conditions, fields []string, prefix string) datastore.PageFetcher {
	return func(_ context.Context, cursor datastore.Cursor) (datastore.Page, error) {
		if err := m.injected(op, q, nil); err != nil {
			return datastore.Page{}, err
		}
		after, _ := cursor.(string)

		m.mu.RLock()
		defer m.mu.RUnlock()
		t := m.table(q.Table, false)
		if t == nil {
			return datastore.Page{}, nil
		}

		var page datastore.Page
		examined := 0
		var last string
		it := t.Iterator()
		for it.Next() {
			key := it.Key().(string)
			if cursor != nil && key <= after {
				continue
			}
			if prefix != "" && !inKeyRange(key, prefix) {
				if key > prefix && !strings.HasPrefix(key, prefix) {
					break
				}
				continue
			}
			if examined == m.pageSize {
				page.Next = last
				break
			}
			examined++
			last = key
			rec := it.Value().(storagemodels.Record)
			if conds.Match(rec) {
				page.Records = append(page.Records, datastore.Project(rec, fields).Clone())
			}
		}
		return page, nil
	}
}

// inKeyRange reports whether composite key belongs to key value k.
func inKeyRange(composite, k string) bool {
	return composite == k || strings.HasPrefix(composite, k+storagemodels.KeyDelimiter)
}

// Records returns a copy of every record in table in key order.
func (m *Provider) Records(table string) []storagemodels.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.table(table, false)
	if t == nil {
		return nil
	}
	out := make([]storagemodels.Record, 0, t.Size())
	for _, v := range t.Values() {
		out = append(out, v.(storagemodels.Record).Clone())
	}
	return out
}

// Count returns the number of records in table.
func (m *Provider) Count(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t := m.table(table, false); t != nil {
		return t.Size()
	}
	return 0
}

// Close drops all data.
func (m *Provider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = make(map[string]*treemap.Map)
	return nil
}
