/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package providertest is a conformance suite for datastore.Provider
// implementations.
//
// The suite uses two tables that SQL-like backends must create up front:
//
//	users:  id TEXT primary key, name TEXT, age INTEGER, score REAL
//	events: id TEXT, seq TEXT, kind TEXT, primary key (id, seq)
package providertest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

const (
	UsersTable  = "users"
	EventsTable = "events"
)

// Factory returns a fresh, empty provider for one sub-test.
type Factory func(t *testing.T) datastore.Provider

// Options describes documented behavioral differences between backends.
type Options struct {
	// UpdateInsertsMissing is set when Update on an absent key creates it.
	UpdateInsertsMissing bool
	// ScanRecords is how many users the pagination tests insert.
	ScanRecords int
}

func users() storagemodels.QueryContext {
	return storagemodels.NewQuery(UsersTable).WithKeyName("id")
}

func events() storagemodels.QueryContext {
	return storagemodels.NewQuery(EventsTable).WithKeyName("id").WithSubkeyName("seq")
}

// RunProviderTests runs the conformance suite against the provider built
// by factory.
func RunProviderTests(t *testing.T, name string, factory Factory, opts Options) {
	if opts.ScanRecords == 0 {
		opts.ScanRecords = 60
	}
	t.Run(name, func(t *testing.T) {
		t.Run("PutGet", func(t *testing.T) { testPutGet(t, factory(t)) })
		t.Run("PutReplaces", func(t *testing.T) { testPutReplaces(t, factory(t)) })
		t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, factory(t)) })
		t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, factory(t), opts) })
		t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
		t.Run("Subkey", func(t *testing.T) { testSubkey(t, factory(t)) })
		t.Run("Validation", func(t *testing.T) { testValidation(t, factory(t)) })
		t.Run("BatchGet", func(t *testing.T) { testBatchGet(t, factory(t)) })
		t.Run("BatchWrite", func(t *testing.T) { testBatchWrite(t, factory(t)) })
		t.Run("ScanPagination", func(t *testing.T) { testScanPagination(t, factory(t), opts) })
		t.Run("ScanConditions", func(t *testing.T) { testScanConditions(t, factory(t)) })
		t.Run("Query", func(t *testing.T) { testQuery(t, factory(t)) })
		t.Run("QueryValidation", func(t *testing.T) { testQueryValidation(t, factory(t)) })
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func put(t *testing.T, p datastore.Provider, q storagemodels.QueryContext, rec storagemodels.Record) {
	t.Helper()
	require.NoError(t, p.Put(context.Background(), q.ForRecord(rec), rec))
}

func get(t *testing.T, p datastore.Provider, q storagemodels.QueryContext) storagemodels.Record {
	t.Helper()
	rec, err := p.Get(context.Background(), q)
	require.NoError(t, err)
	return rec
}

func requireRecord(t *testing.T, want, got storagemodels.Record) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func ids(t *testing.T, rs datastore.ResultSet) []string {
	t.Helper()
	recs, err := datastore.Collect(context.Background(), rs)
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, storagemodels.ValueString(r["id"]))
	}
	sort.Strings(out)
	return out
}

func seedUsers(t *testing.T, p datastore.Provider, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		put(t, p, users(), storagemodels.Record{
			"id":    fmt.Sprintf("u%03d", i),
			"name":  fmt.Sprintf("user-%d", i%7),
			"age":   int64(i),
			"score": float64(i) / 2,
		})
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, p datastore.Provider) {
	rec := storagemodels.Record{"id": "k1", "name": "ada", "age": int64(36), "score": 9.5}
	put(t, p, users(), rec)

	requireRecord(t, rec, get(t, p, users().WithKey("id", "k1")))
	assert.Nil(t, get(t, p, users().WithKey("id", "nope")), "absent key reads as nil")
}

func testPutReplaces(t *testing.T, p datastore.Provider) {
	q := users().WithKey("id", "k1")
	put(t, p, q, storagemodels.Record{"id": "k1", "name": "ada", "age": int64(36)})
	put(t, p, q, storagemodels.Record{"id": "k1", "name": "grace"})

	requireRecord(t, storagemodels.Record{"id": "k1", "name": "grace"}, get(t, p, q))
}

func testUpdateMerges(t *testing.T, p datastore.Provider) {
	ctx := context.Background()
	q := users().WithKey("id", "k1")
	put(t, p, q, storagemodels.Record{"id": "k1", "name": "ada", "age": int64(36)})

	require.NoError(t, p.Update(ctx, q, storagemodels.Record{"age": int64(37), "score": 1.5}))
	requireRecord(t, storagemodels.Record{"id": "k1", "name": "ada", "age": int64(37), "score": 1.5}, get(t, p, q))
}

func testUpdateMissing(t *testing.T, p datastore.Provider, opts Options) {
	q := users().WithKey("id", "ghost")
	require.NoError(t, p.Update(context.Background(), q, storagemodels.Record{"age": int64(1)}))

	got := get(t, p, q)
	if opts.UpdateInsertsMissing {
		requireRecord(t, storagemodels.Record{"id": "ghost", "age": int64(1)}, got)
	} else {
		assert.Nil(t, got)
	}
}

func testDelete(t *testing.T, p datastore.Provider) {
	ctx := context.Background()
	q := users().WithKey("id", "k1")
	put(t, p, q, storagemodels.Record{"id": "k1", "name": "ada"})

	require.NoError(t, p.Delete(ctx, q))
	assert.Nil(t, get(t, p, q))
	assert.NoError(t, p.Delete(ctx, q), "deleting an absent key is not an error")
}

func testSubkey(t *testing.T, p datastore.Provider) {
	put(t, p, events(), storagemodels.Record{"id": "e1", "seq": "001", "kind": "open"})
	put(t, p, events(), storagemodels.Record{"id": "e1", "seq": "002", "kind": "close"})

	requireRecord(t,
		storagemodels.Record{"id": "e1", "seq": "002", "kind": "close"},
		get(t, p, events().WithKey("id", "e1").WithSubkey("seq", "002")))

	require.NoError(t, p.Delete(context.Background(), events().WithKey("id", "e1").WithSubkey("seq", "001")))
	assert.Nil(t, get(t, p, events().WithKey("id", "e1").WithSubkey("seq", "001")))
	assert.NotNil(t, get(t, p, events().WithKey("id", "e1").WithSubkey("seq", "002")))
}

func testValidation(t *testing.T, p datastore.Provider) {
	ctx := context.Background()

	_, err := p.Get(ctx, storagemodels.NewQuery(UsersTable))
	assert.True(t, errors.IsConfiguration(err), "missing key field")

	_, err = p.Get(ctx, storagemodels.QueryContext{KeyField: "id", KeyValue: "k"})
	assert.True(t, errors.IsConfiguration(err), "missing table")

	err = p.Put(ctx, users(), storagemodels.Record{"name": "no key"})
	assert.True(t, errors.IsConfiguration(err), "put without key value")
}

func testBatchGet(t *testing.T, p datastore.Provider) {
	put(t, p, users(), storagemodels.Record{"id": "a", "name": "ada"})
	put(t, p, users(), storagemodels.Record{"id": "b", "name": "bob"})
	put(t, p, events(), storagemodels.Record{"id": "e1", "seq": "001", "kind": "open"})

	got, err := p.BatchGet(context.Background(), []storagemodels.BatchCondition{
		{Table: UsersTable, KeyField: "id", Data: storagemodels.Record{"id": "a"}},
		{Table: UsersTable, KeyField: "id", Data: storagemodels.Record{"id": "missing"}},
		{Table: UsersTable, KeyField: "id", Data: storagemodels.Record{"id": "b"}},
		{Table: EventsTable, KeyField: "id", SubkeyField: "seq", Data: storagemodels.Record{"id": "e1", "seq": "001"}},
	})
	require.NoError(t, err)

	require.Len(t, got[UsersTable], 2)
	names := []string{got[UsersTable][0]["name"].(string), got[UsersTable][1]["name"].(string)}
	sort.Strings(names)
	assert.Equal(t, []string{"ada", "bob"}, names)
	require.Len(t, got[EventsTable], 1)
	assert.Equal(t, "open", got[EventsTable][0]["kind"])
}

func testBatchWrite(t *testing.T, p datastore.Provider) {
	err := p.BatchWrite(context.Background(), []storagemodels.WriteIntent{
		{Action: storagemodels.ActionPut, Table: UsersTable, KeyField: "id", Data: storagemodels.Record{"id": "k1", "name": "first"}},
		{Action: storagemodels.ActionPut, Table: UsersTable, KeyField: "id", Data: storagemodels.Record{"id": "k2", "name": "second"}},
		{Action: storagemodels.ActionDelete, Table: UsersTable, KeyField: "id", Data: storagemodels.Record{"id": "k1"}},
		{Action: storagemodels.ActionPut, Table: EventsTable, KeyField: "id", SubkeyField: "seq", Data: storagemodels.Record{"id": "e9", "seq": "001", "kind": "x"}},
	})
	require.NoError(t, err)

	assert.Nil(t, get(t, p, users().WithKey("id", "k1")), "intents apply in caller order")
	assert.Equal(t, "second", get(t, p, users().WithKey("id", "k2"))["name"])
	assert.Equal(t, "x", get(t, p, events().WithKey("id", "e9").WithSubkey("seq", "001"))["kind"])
}

func testScanPagination(t *testing.T, p datastore.Provider, opts Options) {
	seedUsers(t, p, opts.ScanRecords)

	rs, err := p.Scan(context.Background(), users(), nil, nil)
	require.NoError(t, err)
	got := ids(t, rs)

	require.Len(t, got, opts.ScanRecords)
	for i, id := range got {
		assert.Equal(t, fmt.Sprintf("u%03d", i), id, "every record exactly once")
	}
}

func testScanConditions(t *testing.T, p datastore.Provider) {
	ctx := context.Background()
	seedUsers(t, p, 30)

	rs, err := p.Scan(ctx, users(), storagemodels.Conditions{
		"age":  {Operator: storagemodels.OpGe, Value: int64(20)},
		"name": storagemodels.BeginsWith("user-1"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"u022", "u029"}, ids(t, rs))

	operators := []struct {
		name  string
		field string
		cond  storagemodels.Condition
		want  []string
	}{
		{"eq", "age", storagemodels.Condition{Operator: storagemodels.OpEq, Value: int64(7)}, []string{"u007"}},
		{"gt", "age", storagemodels.Condition{Operator: storagemodels.OpGt, Value: int64(27)}, []string{"u028", "u029"}},
		{"ge", "age", storagemodels.Condition{Operator: storagemodels.OpGe, Value: int64(28)}, []string{"u028", "u029"}},
		{"lt", "age", storagemodels.Condition{Operator: storagemodels.OpLt, Value: int64(2)}, []string{"u000", "u001"}},
		{"le", "age", storagemodels.Condition{Operator: storagemodels.OpLe, Value: int64(1)}, []string{"u000", "u001"}},
		{"beginsWith", "name", storagemodels.BeginsWith("user-6"), []string{"u006", "u013", "u020", "u027"}},
	}
	for _, tc := range operators {
		t.Run(tc.name, func(t *testing.T) {
			rs, err := p.Scan(ctx, users(), storagemodels.Conditions{tc.field: tc.cond}, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(t, rs))
		})
	}

	rs, err = p.Scan(ctx, users(), storagemodels.Conditions{"score": {Operator: storagemodels.OpLt, Value: 1.0}}, []string{"id", "score"})
	require.NoError(t, err)
	recs, err := datastore.Collect(ctx, rs)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.NotContains(t, r, "name", "projection drops unrequested fields")
		assert.Contains(t, r, "score")
	}

	rs, err = p.Scan(ctx, storagemodels.NewQuery("never_written"), nil, nil)
	if err == nil {
		assert.Empty(t, ids(t, rs))
	}
}

func testQuery(t *testing.T, p datastore.Provider) {
	ctx := context.Background()
	for _, id := range []string{"e1", "e2"} {
		for _, seq := range []string{"001", "002", "003"} {
			put(t, p, events(), storagemodels.Record{"id": id, "seq": seq, "kind": id + "-" + seq})
		}
	}

	rs, err := p.Query(ctx, events(), storagemodels.Conditions{"id": storagemodels.Eq("e1")}, nil)
	require.NoError(t, err)
	recs, err := datastore.Collect(ctx, rs)
	require.NoError(t, err)
	kinds := make([]string, 0, len(recs))
	for _, r := range recs {
		kinds = append(kinds, r["kind"].(string))
	}
	sort.Strings(kinds)
	assert.Equal(t, []string{"e1-001", "e1-002", "e1-003"}, kinds)

	rs, err = p.Query(ctx, events(), storagemodels.Conditions{
		"id":  storagemodels.Eq("e2"),
		"seq": {Operator: storagemodels.OpGe, Value: "002"},
	}, nil)
	require.NoError(t, err)
	recs, err = datastore.Collect(ctx, rs)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func testQueryValidation(t *testing.T, p datastore.Provider) {
	ctx := context.Background()

	_, err := p.Query(ctx, events(), storagemodels.Conditions{"kind": storagemodels.Eq("x")}, nil)
	assert.True(t, errors.IsOperation(err), "non-key field")

	_, err = p.Query(ctx, events(), storagemodels.Conditions{"id": storagemodels.BeginsWith("e")}, nil)
	assert.True(t, errors.IsOperation(err), "key field needs equality")

	_, err = p.Scan(ctx, users(), storagemodels.Conditions{"age": {Operator: "~", Value: 1}}, nil)
	assert.True(t, errors.IsConfiguration(err), "unknown operator")
}
