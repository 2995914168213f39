/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/providertest"
	"github.com/suparena/genericstore/datastore/retry"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const schema = `
CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT, age INTEGER, score REAL, active BOOLEAN);
CREATE TABLE events (id TEXT NOT NULL, seq TEXT NOT NULL, kind TEXT, PRIMARY KEY (id, seq));
`

func openSQLite(t *testing.T) *sql.DB {
	db, err := sql.Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func newTestProvider(t *testing.T) *Provider {
	return New(openSQLite(t), Options{
		PageSize: 7,
		Retry:    retry.Policy{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
	})
}

func TestProviderConformance(t *testing.T) {
	providertest.RunProviderTests(t, "sqlite", func(t *testing.T) datastore.Provider {
		return newTestProvider(t)
	}, providertest.Options{UpdateInsertsMissing: false})
}

func TestNullColumnsAreOmitted(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	q := storagemodels.NewQuery("users").WithKey("id", "u1")

	require.NoError(t, p.Put(ctx, q, storagemodels.Record{"name": "Ann", "age": 30}))
	require.NoError(t, p.Update(ctx, q, storagemodels.Record{"score": 2.5}))

	rec, err := p.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, storagemodels.Record{"id": "u1", "name": "Ann", "age": int64(30), "score": 2.5}, rec)
}

func TestUnknownColumnIsPermanent(t *testing.T) {
	p := newTestProvider(t)
	err := p.Put(context.Background(), storagemodels.NewQuery("users").WithKey("id", "u1"), storagemodels.Record{"nickname": "x"})
	require.Error(t, err)
	assert.True(t, errors.IsOperation(err))
	assert.True(t, errors.IsPermanent(err))
}

func TestInvalidIdentifiers(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.Get(ctx, storagemodels.NewQuery("users; DROP TABLE users").WithKey("id", "u1"))
	assert.True(t, errors.IsConfiguration(err))

	err = p.Put(ctx, storagemodels.NewQuery("users").WithKey("id", "u1"), storagemodels.Record{"na`me": "x"})
	assert.True(t, errors.IsConfiguration(err))

	_, err = p.Scan(ctx, storagemodels.NewQuery("users"), storagemodels.Conditions{"a b": storagemodels.Eq(1)}, nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestBeginsWithEscapesWildcards(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	users := storagemodels.NewQuery("users").WithKeyName("id")
	for _, name := range []string{"50%off", "50 off", "5_0", "510"} {
		require.NoError(t, p.Put(ctx, users.WithKey("id", name), storagemodels.Record{"name": name}))
	}

	for prefix, want := range map[string]int{"50%": 1, "5_": 1, "50": 2} {
		rs, err := p.Scan(ctx, users, storagemodels.Conditions{"name": storagemodels.BeginsWith(prefix)}, nil)
		require.NoError(t, err)
		recs, err := datastore.Collect(ctx, rs)
		require.NoError(t, err)
		assert.Len(t, recs, want, prefix)
	}
}

func TestBatchWriteIsOneTransaction(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	err := p.BatchWrite(ctx, []storagemodels.WriteIntent{
		{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "ok", "name": "a"}},
		{Table: "users", KeyField: "id", Data: storagemodels.Record{"id": "bad", "bogus": 1}},
	})
	require.Error(t, err)

	rec, err := p.Get(ctx, storagemodels.NewQuery("users").WithKey("id", "ok"))
	require.NoError(t, err)
	assert.Nil(t, rec, "first write rolled back with the second")
}

func TestScanPagesByOffset(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	for i := 0; i < 14; i++ {
		require.NoError(t, p.Put(ctx, storagemodels.NewQuery("users").WithKey("id", fmt.Sprintf("u%02d", i)), storagemodels.Record{"age": i}))
	}

	rs, err := p.Scan(ctx, storagemodels.NewQuery("users").WithKeyName("id"), nil, []string{"id"})
	require.NoError(t, err)
	recs, err := datastore.Collect(ctx, rs)
	require.NoError(t, err)
	require.Len(t, recs, 14)
	assert.Equal(t, "u00", recs[0]["id"])
	assert.Equal(t, "u13", recs[13]["id"])
	assert.Equal(t, 3, rs.(*datastore.PagedResultSet).Pages(), "two full pages and an empty one")
}

func TestSelectPageStatement(t *testing.T) {
	q := storagemodels.NewQuery("events").WithKeyName("id").WithSubkeyName("seq")
	stmt, args, err := selectPage("query", q, storagemodels.Conditions{
		"id":  storagemodels.Eq("e1"),
		"seq": storagemodels.BeginsWith("0!1"),
	}, []string{"kind"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `kind` FROM `events` WHERE `id` = ? AND `seq` LIKE ? ESCAPE '!' ORDER BY `id`, `seq` LIMIT ? OFFSET ?", stmt)
	assert.Equal(t, []any{"e1", "0!!1%"}, args)
}

func TestColumnValue(t *testing.T) {
	assert.Equal(t, int64(42), columnValue("BIGINT", []byte("42")))
	assert.Equal(t, 1.5, columnValue("DECIMAL", []byte("1.5")))
	assert.Equal(t, "hello", columnValue("VARCHAR", []byte("hello")))
	assert.Equal(t, "2025-01-02T03:04:05Z", columnValue("DATETIME", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Nil(t, columnValue("TEXT", nil))
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(DriverMySQL, config.ProviderConfig{
		"database_host":     "db.internal",
		"database_name":     "app",
		"database_user":     "u",
		"database_password": "p",
	})
	require.NoError(t, err)
	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:3306", mc.Addr)
	assert.Equal(t, "app", mc.DBName)
	assert.Equal(t, "u", mc.User)

	_, err = DSN(DriverSQLite, config.ProviderConfig{})
	assert.True(t, errors.IsConfiguration(err))
}

func TestClassify(t *testing.T) {
	assert.True(t, errors.IsConnection(classify("put", &mysql.MySQLError{Number: 1213})))
	assert.True(t, errors.IsConfiguration(classify("put", &mysql.MySQLError{Number: 1146})))
	assert.True(t, errors.IsPermanent(classify("put", &mysql.MySQLError{Number: 1062})))
	assert.True(t, errors.IsConnection(classify("put", mysql.ErrInvalidConn)))
}

func TestConnectThroughRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reg.db")
	ctx := context.Background()

	p, err := registry.Connect(ctx, config.ProviderConfig{
		"provider":  "sql",
		"driver":    "sqlite",
		"dsn":       path,
		"page_size": 3,
	})
	require.NoError(t, err)
	defer p.Close()

	db := p.(*Provider).DB()
	_, err = db.Exec(schema)
	require.NoError(t, err)

	q := storagemodels.NewQuery("users").WithKey("id", "u1")
	require.NoError(t, p.Put(ctx, q, storagemodels.Record{"name": "Ann", "active": true}))
	rec, err := p.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "Ann", rec["name"])

	_, err = registry.Connect(ctx, config.ProviderConfig{"provider": "sql", "driver": "oracle"})
	assert.True(t, errors.IsConfiguration(err))
}
