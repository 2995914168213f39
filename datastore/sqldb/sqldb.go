/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldb

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/connpool"
	"github.com/suparena/genericstore/datastore/retry"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const (
	ProviderName = "sql"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var pools = connpool.New[*sql.DB]()

func init() {
	registry.RegisterProvider(ProviderName, Connect)
	registry.RegisterProvider(DriverMySQL, Connect)
}

// Options configures a SQL provider.
type Options struct {
	Name     string
	PageSize int
	Retry    retry.Policy
	Logger   *zap.Logger
}

// Provider implements datastore.Provider over a relational database.
// Tables must exist with one column per record field.
type Provider struct {
	db       *sql.DB
	name     string
	pageSize int
	retry    retry.Policy
	logger   *zap.Logger
	release  func() error
}

var _ datastore.Provider = (*Provider)(nil)

// DSN builds a connection string from configuration: dsn when present,
// otherwise a MySQL DSN from database_host, database_port, database_name,
// database_user and database_password.
func DSN(driver string, cfg config.ProviderConfig) (string, error) {
	if dsn := cfg.StringDefault("dsn", ""); dsn != "" {
		return dsn, nil
	}
	if driver != DriverMySQL {
		return "", errors.Configurationf("connect", "sql: driver %q requires dsn", driver)
	}
	host, err := cfg.String("database_host")
	if err != nil {
		return "", err
	}
	name, err := cfg.String("database_name")
	if err != nil {
		return "", err
	}
	port, err := cfg.IntDefault("database_port", 3306)
	if err != nil {
		return "", err
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = name
	mc.User = cfg.StringDefault("database_user", "")
	mc.Passwd = cfg.StringDefault("database_password", "")
	return mc.FormatDSN(), nil
}

func driverName(cfg config.ProviderConfig) (string, error) {
	d := strings.ToLower(cfg.StringDefault("driver", DriverMySQL))
	switch d {
	case DriverMySQL:
		return DriverMySQL, nil
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	}
	return "", errors.Configurationf("connect", "sql: unsupported driver %q", d)
}

// Connect builds a provider from configuration. Recognized keys: driver,
// dsn, database_host, database_port, database_name, database_user,
// database_password, page_size, max_open_conns, max_attempts.
func Connect(ctx context.Context, cfg config.ProviderConfig) (datastore.Provider, error) {
	driver, err := driverName(cfg)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(driver, cfg)
	if err != nil {
		return nil, err
	}
	pageSize, err := cfg.IntDefault("page_size", datastore.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	maxOpen, err := cfg.IntDefault("max_open_conns", 0)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := cfg.IntDefault("max_attempts", retry.DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}

	key := connpool.Key(ProviderName, driver, dsn)
	db, err := pools.Acquire(key, func() (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		if maxOpen > 0 {
			db.SetMaxOpenConns(maxOpen)
		}
		zap.L().Info("sql database opened", zap.String("driver", driver))
		return db, nil
	})
	if err != nil {
		return nil, errors.Configuration("connect", err).WithProvider(ProviderName)
	}

	p := New(db, Options{
		Name:     cfg.Name(),
		PageSize: pageSize,
		Retry:    retry.Default(ProviderName).WithMaxAttempts(maxAttempts),
	})
	p.release = func() error { return pools.Release(key) }

	if err := p.Ping(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an open database.
func New(db *sql.DB, opts Options) *Provider {
	if opts.Name == "" {
		opts.Name = ProviderName
	}
	if opts.PageSize <= 0 {
		opts.PageSize = datastore.DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default(opts.Name)
	}
	if opts.Retry.Provider == "" {
		opts.Retry.Provider = opts.Name
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = opts.Logger
	}
	return &Provider{
		db:       db,
		name:     opts.Name,
		pageSize: opts.PageSize,
		retry:    opts.Retry,
		logger:   opts.Logger,
	}
}

func (p *Provider) Name() string { return p.name }

// DB exposes the underlying handle.
func (p *Provider) DB() *sql.DB { return p.db }

// Ping checks the database is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	return p.do(ctx, "connect", storagemodels.QueryContext{}, nil, func(ctx context.Context) error {
		return p.db.PingContext(ctx)
	})
}

func call[T any](ctx context.Context, p *Provider, op string, q storagemodels.QueryContext, payload any, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Value(ctx, p.retry, op, payload, func(ctx context.Context) (T, error) {
		out, err := fn(ctx)
		if err != nil {
			var zero T
			return zero, classify(op, err).WithProvider(p.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue)
		}
		return out, nil
	})
}

func (p *Provider) do(ctx context.Context, op string, q storagemodels.QueryContext, payload any, fn func(ctx context.Context) error) error {
	_, err := call(ctx, p, op, q, payload, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// inTx runs fn in one transaction, rolling back on error.
func (p *Provider) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type statement struct {
	query string
	args  []any
}

func (p *Provider) query(ctx context.Context, query string, args ...any) ([]storagemodels.Record, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Get returns nil, nil when no row matches.
func (p *Provider) Get(ctx context.Context, q storagemodels.QueryContext) (storagemodels.Record, error) {
	if err := q.ValidateKey("get"); err != nil {
		return nil, err
	}
	stmt, args, err := selectOne(q)
	if err != nil {
		return nil, err
	}
	recs, err := call(ctx, p, "get", q, q, func(ctx context.Context) ([]storagemodels.Record, error) {
		return p.query(ctx, stmt, args...)
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func putStatements(op string, q storagemodels.QueryContext, rec storagemodels.Record) ([]statement, error) {
	del, delArgs, err := deleteOne(op, q)
	if err != nil {
		return nil, err
	}
	ins, insArgs, err := insert(op, q, rec)
	if err != nil {
		return nil, err
	}
	return []statement{{del, delArgs}, {ins, insArgs}}, nil
}

// Put replaces the row: DELETE then INSERT in one transaction, so columns
// absent from the record end up NULL.
func (p *Provider) Put(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("put", q, record)
	if err != nil {
		return err
	}
	stmts, err := putStatements("put", q, rec)
	if err != nil {
		return err
	}
	return p.exec(ctx, "put", q, rec, stmts)
}

// exec runs stmts in one transaction under the retry policy.
func (p *Provider) exec(ctx context.Context, op string, q storagemodels.QueryContext, payload any, stmts []statement) error {
	return p.do(ctx, op, q, payload, func(ctx context.Context) error {
		return p.inTx(ctx, func(tx *sql.Tx) error {
			for _, s := range stmts {
				if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// Update sets the supplied non-key columns. A missing row is left
// missing: the UPDATE matches nothing.
func (p *Provider) Update(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("update", q, record)
	if err != nil {
		return err
	}
	stmt, args, err := update(q, rec)
	if err != nil || stmt == "" {
		return err
	}
	return p.do(ctx, "update", q, rec, func(ctx context.Context) error {
		res, err := p.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			p.logger.Debug("update matched no rows", zap.String("provider", p.name), zap.String("table", q.Table), zap.String("key", q.CompositeKey()))
		}
		return nil
	})
}

func (p *Provider) Delete(ctx context.Context, q storagemodels.QueryContext) error {
	if err := q.ValidateKey("delete"); err != nil {
		return err
	}
	stmt, args, err := deleteOne("delete", q)
	if err != nil {
		return err
	}
	return p.do(ctx, "delete", q, q, func(ctx context.Context) error {
		_, err := p.db.ExecContext(ctx, stmt, args...)
		return err
	})
}

// BatchGet runs one keyed SELECT per condition.
func (p *Provider) BatchGet(ctx context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error) {
	out := make(map[string][]storagemodels.Record)
	for _, c := range conditions {
		q, err := c.Query()
		if err != nil {
			return nil, err
		}
		rec, err := p.Get(ctx, q)
		if err != nil {
			return nil, errors.Ensure("batchGet", err)
		}
		if rec != nil {
			out[q.Table] = append(out[q.Table], rec)
		}
	}
	return out, nil
}

// BatchWrite applies every intent in caller order inside one transaction.
func (p *Provider) BatchWrite(ctx context.Context, intents []storagemodels.WriteIntent) error {
	var stmts []statement
	for _, w := range intents {
		q, err := w.Query()
		if err != nil {
			return err
		}
		if w.Action == storagemodels.ActionDelete {
			del, args, err := deleteOne("batchWrite", q)
			if err != nil {
				return err
			}
			stmts = append(stmts, statement{del, args})
			continue
		}
		rec, err := datastore.PrepareWrite("batchWrite", q, w.Data)
		if err != nil {
			return err
		}
		put, err := putStatements("batchWrite", q, rec)
		if err != nil {
			return err
		}
		stmts = append(stmts, put...)
	}
	if len(stmts) == 0 {
		return nil
	}
	return p.exec(ctx, "batchWrite", storagemodels.QueryContext{}, intents, stmts)
}

// Scan pages through matching rows with LIMIT/OFFSET. The cursor is the
// next offset.
func (p *Provider) Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareScan(q, conditions)
	if err != nil {
		return nil, err
	}
	return p.paged(ctx, "scan", q, conds, fields)
}

// Query is Scan restricted to key and subkey conditions.
func (p *Provider) Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	conds, err := datastore.PrepareQuery(q, conditions)
	if err != nil {
		return nil, err
	}
	return p.paged(ctx, "query", q, conds, fields)
}

func (p *Provider) paged(ctx context.Context, op string, q storagemodels.QueryContext, conds storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	stmt, args, err := selectPage(op, q, conds, fields)
	if err != nil {
		return nil, err
	}
	return datastore.NewPagedResultSet(ctx, func(ctx context.Context, cursor datastore.Cursor) (datastore.Page, error) {
		offset, _ := cursor.(int)
		pageArgs := append(append([]any{}, args...), p.pageSize, offset)
		recs, err := call(ctx, p, op, q, conds, func(ctx context.Context) ([]storagemodels.Record, error) {
			return p.query(ctx, stmt, pageArgs...)
		})
		if err != nil {
			return datastore.Page{}, err
		}
		page := datastore.Page{Records: recs}
		if len(recs) == p.pageSize {
			page.Next = offset + len(recs)
		}
		return page, nil
	})
}

// Close releases the pooled database.
func (p *Provider) Close() error {
	if p.release != nil {
		return p.release()
	}
	return nil
}
