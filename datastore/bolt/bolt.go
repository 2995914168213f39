/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package bolt stores records in an embedded bbolt file, one bucket per
// table, MessagePack-encoded and keyed by key[::subkey].
package bolt

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/codec"
	"github.com/suparena/genericstore/datastore/connpool"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const ProviderName = "bolt"

var pool = connpool.New[*bbolt.DB]()

func init() {
	registry.RegisterProvider(ProviderName, Connect)
}

// Options configures a bolt provider.
type Options struct {
	Path     string
	PageSize int
	Timeout  time.Duration
	NoSync   bool
	Logger   *zap.Logger
}

// Provider is a datastore.Provider over a shared *bbolt.DB.
type Provider struct {
	name     string
	db       *bbolt.DB
	poolKey  string
	pageSize int
	codec    codec.Codec
	logger   *zap.Logger
}

var _ datastore.Provider = (*Provider)(nil)

// Connect builds a provider from configuration. Recognized keys: path,
// page_size, timeout, no_sync.
func Connect(_ context.Context, cfg config.ProviderConfig) (datastore.Provider, error) {
	path, err := cfg.String("path")
	if err != nil {
		return nil, err
	}
	pageSize, err := cfg.IntDefault("page_size", datastore.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Duration("timeout", time.Second)
	if err != nil {
		return nil, err
	}
	noSync, err := cfg.Bool("no_sync", false)
	if err != nil {
		return nil, err
	}
	p, err := Open(Options{Path: path, PageSize: pageSize, Timeout: timeout, NoSync: noSync})
	if err != nil {
		return nil, err
	}
	if name := cfg.Name(); name != "" {
		p.name = name
	}
	return p, nil
}

// Open returns a provider on the file at opts.Path. Providers opened on
// the same path share one *bbolt.DB.
func Open(opts Options) (*Provider, error) {
	if opts.Path == "" {
		return nil, errors.Configurationf("connect", "bolt: path is required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = datastore.DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, errors.Configuration("connect", err)
	}

	key := connpool.Key(ProviderName, abs)
	db, err := pool.Acquire(key, func() (*bbolt.DB, error) {
		bopt := *bbolt.DefaultOptions
		bopt.Timeout = opts.Timeout
		bopt.NoSync = opts.NoSync
		opts.Logger.Info("opening bolt database", zap.String("path", abs))
		return bbolt.Open(abs, 0o600, &bopt)
	})
	if err != nil {
		return nil, errors.Connection("connect", err).WithProvider(ProviderName)
	}
	return &Provider{
		name:     ProviderName,
		db:       db,
		poolKey:  key,
		pageSize: opts.PageSize,
		codec:    codec.MsgPack,
		logger:   opts.Logger,
	}, nil
}

func (p *Provider) Name() string { return p.name }

// DB exposes the underlying handle.
func (p *Provider) DB() *bbolt.DB { return p.db }

func (p *Provider) fail(op string, q storagemodels.QueryContext, err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	return errors.Operation(op, err).WithProvider(p.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue)
}

func (p *Provider) decode(v []byte) (storagemodels.Record, error) {
	return p.codec.Unmarshal(v)
}

func getIn(tx *bbolt.Tx, c codec.Codec, q storagemodels.QueryContext) (storagemodels.Record, error) {
	b := tx.Bucket([]byte(q.Table))
	if b == nil {
		return nil, nil
	}
	v := b.Get([]byte(q.CompositeKey()))
	if v == nil {
		return nil, nil
	}
	return c.Unmarshal(v)
}

func putIn(tx *bbolt.Tx, c codec.Codec, q storagemodels.QueryContext, rec storagemodels.Record) error {
	b, err := tx.CreateBucketIfNotExists([]byte(q.Table))
	if err != nil {
		return err
	}
	data, err := c.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(q.CompositeKey()), data)
}

func deleteIn(tx *bbolt.Tx, q storagemodels.QueryContext) error {
	b := tx.Bucket([]byte(q.Table))
	if b == nil {
		return nil
	}
	return b.Delete([]byte(q.CompositeKey()))
}

func (p *Provider) Get(_ context.Context, q storagemodels.QueryContext) (storagemodels.Record, error) {
	if err := q.ValidateKey("get"); err != nil {
		return nil, err
	}
	var rec storagemodels.Record
	err := p.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getIn(tx, p.codec, q)
		return err
	})
	if err != nil {
		return nil, p.fail("get", q, err)
	}
	return rec, nil
}

func (p *Provider) Put(_ context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("put", q, record)
	if err != nil {
		return err
	}
	err = p.db.Update(func(tx *bbolt.Tx) error {
		return putIn(tx, p.codec, q, rec)
	})
	return p.failIf("put", q, err)
}

// Update merges into the stored record, creating it when absent.
func (p *Provider) Update(_ context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("update", q, record)
	if err != nil {
		return err
	}
	err = p.db.Update(func(tx *bbolt.Tx) error {
		cur, err := getIn(tx, p.codec, q)
		if err != nil {
			return err
		}
		if cur != nil {
			rec = cur.Merge(rec)
		}
		return putIn(tx, p.codec, q, rec)
	})
	return p.failIf("update", q, err)
}

func (p *Provider) Delete(_ context.Context, q storagemodels.QueryContext) error {
	if err := q.ValidateKey("delete"); err != nil {
		return err
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		return deleteIn(tx, q)
	})
	return p.failIf("delete", q, err)
}

func (p *Provider) failIf(op string, q storagemodels.QueryContext, err error) error {
	if err == nil {
		return nil
	}
	return p.fail(op, q, err)
}

// BatchGet reads all addressed records in one read transaction.
func (p *Provider) BatchGet(_ context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error) {
	queries := make([]storagemodels.QueryContext, 0, len(conditions))
	for _, c := range conditions {
		q, err := c.Query()
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}

	out := make(map[string][]storagemodels.Record)
	err := p.db.View(func(tx *bbolt.Tx) error {
		for _, q := range queries {
			rec, err := getIn(tx, p.codec, q)
			if err != nil {
				return err
			}
			if rec != nil {
				out[q.Table] = append(out[q.Table], rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, p.fail("batchGet", storagemodels.QueryContext{}, err)
	}
	return out, nil
}

// BatchWrite applies all intents in order inside one write transaction.
func (p *Provider) BatchWrite(_ context.Context, intents []storagemodels.WriteIntent) error {
	type prepared struct {
		q   storagemodels.QueryContext
		rec storagemodels.Record
		del bool
	}
	ops := make([]prepared, 0, len(intents))
	for _, w := range intents {
		q, err := w.Query()
		if err != nil {
			return err
		}
		if w.Action == storagemodels.ActionDelete {
			ops = append(ops, prepared{q: q, del: true})
			continue
		}
		rec, err := datastore.PrepareWrite("batchWrite", q, w.Data)
		if err != nil {
			return err
		}
		ops = append(ops, prepared{q: q, rec: rec})
	}

	err := p.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range ops {
			var err error
			if op.del {
				err = deleteIn(tx, op.q)
			} else {
				err = putIn(tx, p.codec, op.q, op.rec)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return p.failIf("batchWrite", storagemodels.QueryContext{}, err)
}

func (p *Provider) Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareScan(q, conditions)
	if err != nil {
		return nil, err
	}
	return datastore.NewPagedResultSet(ctx, p.fetcher("scan", q, conds, fields, ""))
}

// Query seeks straight to the key value and stops at the end of its range.
func (p *Provider) Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareQuery(q, conditions)
	if err != nil {
		return nil, err
	}
	prefix := storagemodels.ValueString(conds[q.KeyField].Value)
	return datastore.NewPagedResultSet(ctx, p.fetcher("query", q, conds, fields, prefix))
}

// fetcher reads one page per read transaction. The cursor is the last key
// examined, so writes between pages do not repeat or skip records.
func (p *Provider) fetcher(op string, q storagemodels.QueryContext, conds storagemodels.Conditions, fields []string, prefix string) datastore.PageFetcher {
	return func(_ context.Context, cursor datastore.Cursor) (datastore.Page, error) {
		var page datastore.Page
		err := p.db.View(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(q.Table))
			if b == nil {
				return nil
			}
			c := b.Cursor()

			var k, v []byte
			if after, ok := cursor.(string); ok {
				k, v = c.Seek([]byte(after))
				if k != nil && string(k) == after {
					k, v = c.Next()
				}
			} else {
				k, v = c.Seek([]byte(prefix))
			}

			examined := 0
			var last string
			for ; k != nil; k, v = c.Next() {
				key := string(k)
				if prefix != "" {
					if !strings.HasPrefix(key, prefix) {
						break
					}
					if !inKeyRange(key, prefix) {
						continue
					}
				}
				if examined == p.pageSize {
					page.Next = last
					break
				}
				examined++
				last = key

				rec, err := p.decode(v)
				if err != nil {
					return err
				}
				if conds.Match(rec) {
					page.Records = append(page.Records, datastore.Project(rec, fields))
				}
			}
			return nil
		})
		if err != nil {
			return datastore.Page{}, p.fail(op, q, err)
		}
		return page, nil
	}
}

func inKeyRange(composite, k string) bool {
	return composite == k || strings.HasPrefix(composite, k+storagemodels.KeyDelimiter)
}

// Close releases this provider's reference to the shared database.
func (p *Provider) Close() error {
	if err := pool.Release(p.poolKey); err != nil {
		return errors.Connection("close", err).WithProvider(p.name)
	}
	return nil
}
