/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/memory"
	"github.com/suparena/genericstore/datastore/providertest"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

func TestProviderConformance(t *testing.T) {
	providertest.RunProviderTests(t, "memory", func(*testing.T) datastore.Provider {
		return memory.New().WithPageSize(7)
	}, providertest.Options{UpdateInsertsMissing: true})
}

func TestErrorSimulation(t *testing.T) {
	ctx := context.Background()
	q := storagemodels.NewQuery("users").WithKey("id", "k1")

	t.Run("PutError", func(t *testing.T) {
		m := memory.New().WithPutError(fmt.Errorf("disk full"))
		err := m.Put(ctx, q, storagemodels.Record{"name": "x"})
		require.Error(t, err)
		assert.True(t, errors.IsOperation(err))
		assert.Equal(t, 0, m.Count("users"))

		m.WithPutError(nil)
		require.NoError(t, m.Put(ctx, q, storagemodels.Record{"name": "x"}))
		assert.Equal(t, 1, m.Count("users"))
	})

	t.Run("UpdateAndDeleteErrors", func(t *testing.T) {
		m := memory.New()
		require.NoError(t, m.Put(ctx, q, storagemodels.Record{"name": "x"}))

		m.WithUpdateError(fmt.Errorf("nope")).WithDeleteError(fmt.Errorf("nope"))
		assert.Error(t, m.Update(ctx, q, storagemodels.Record{"name": "y"}))
		assert.Error(t, m.Delete(ctx, q))
		assert.Equal(t, []storagemodels.Record{{"id": "k1", "name": "x"}}, m.Records("users"))
	})

	t.Run("GetError", func(t *testing.T) {
		m := memory.New().WithGetError(fmt.Errorf("unavailable"))
		_, err := m.Get(ctx, q)
		assert.Error(t, err)
	})

	t.Run("FailureFunc", func(t *testing.T) {
		calls := 0
		m := memory.New().WithPageSize(2).WithFailureFunc(func(op string, _ storagemodels.QueryContext) error {
			if op != "scan" {
				return nil
			}
			calls++
			if calls == 3 {
				return fmt.Errorf("page fetch failed")
			}
			return nil
		})
		for i := 0; i < 6; i++ {
			require.NoError(t, m.Put(ctx, storagemodels.NewQuery("t").WithKey("id", fmt.Sprintf("%d", i)), storagemodels.Record{}))
		}

		rs, err := m.Scan(ctx, storagemodels.NewQuery("t"), nil, nil)
		require.NoError(t, err)
		_, err = datastore.Collect(ctx, rs)
		assert.Error(t, err, "second page fetch fails")

		recs, err := datastore.Collect(ctx, rs)
		require.NoError(t, err, "the failed page is retried on the next call")
		assert.Len(t, recs, 4)
	})
}

func TestScanYieldsEmptyPages(t *testing.T) {
	ctx := context.Background()
	m := memory.New().WithPageSize(2)
	for i := 0; i < 10; i++ {
		kind := "skip"
		if i == 0 || i == 9 {
			kind = "keep"
		}
		q := storagemodels.NewQuery("t").WithKey("id", fmt.Sprintf("k%02d", i))
		require.NoError(t, m.Put(ctx, q, storagemodels.Record{"kind": kind}))
	}

	rs, err := m.Scan(ctx, storagemodels.NewQuery("t"), storagemodels.Conditions{"kind": storagemodels.Eq("keep")}, nil)
	require.NoError(t, err)
	recs, err := datastore.Collect(ctx, rs)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "k00", recs[0]["id"])
	assert.Equal(t, "k09", recs[1]["id"])

	paged := rs.(*datastore.PagedResultSet)
	assert.Equal(t, 5, paged.Pages(), "filtered pages in the middle are empty but not terminal")
}

func TestQueryDoesNotLeakNeighbouringKeys(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	q := storagemodels.NewQuery("t").WithKeyName("id").WithSubkeyName("v")
	for _, id := range []string{"a", "a-1", "a::x", "ab"} {
		require.NoError(t, m.Put(ctx, q.WithKey("id", id).WithSubkey("v", "1"), storagemodels.Record{}))
	}

	rs, err := m.Query(ctx, q, storagemodels.Conditions{"id": storagemodels.Eq("a")}, nil)
	require.NoError(t, err)
	recs, err := datastore.Collect(ctx, rs)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0]["id"])
}

func TestRegisteredWithRegistry(t *testing.T) {
	p, err := registry.Connect(context.Background(), config.ProviderConfig{"provider": "memory", "name": "cache", "page_size": 3})
	require.NoError(t, err)
	assert.Equal(t, "cache", p.Name())

	_, err = registry.Connect(context.Background(), config.ProviderConfig{"provider": "memory", "page_size": "lots"})
	assert.True(t, errors.IsConfiguration(err))
}

func TestStoredRecordsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	q := storagemodels.NewQuery("t").WithKey("id", "k")

	rec := storagemodels.Record{"n": int64(1)}
	require.NoError(t, m.Put(ctx, q, rec))
	rec["n"] = int64(2)

	got, err := m.Get(ctx, q)
	require.NoError(t, err)
	got["n"] = int64(3)

	again, err := m.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again["n"])
}
