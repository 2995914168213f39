/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/providertest"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

func openTemp(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(Options{Path: filepath.Join(t.TempDir(), "store.db"), PageSize: 7, NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProviderConformance(t *testing.T) {
	providertest.RunProviderTests(t, "bolt", func(t *testing.T) datastore.Provider {
		return openTemp(t)
	}, providertest.Options{UpdateInsertsMissing: true})
}

func TestSharedHandlePerPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := Open(Options{Path: path})
	require.NoError(t, err)
	b, err := Open(Options{Path: path})
	require.NoError(t, err)
	assert.Same(t, a.DB(), b.DB())

	ctx := context.Background()
	q := storagemodels.NewQuery("t").WithKey("id", "k")
	require.NoError(t, a.Put(ctx, q, storagemodels.Record{"v": int64(1)}))

	require.NoError(t, a.Close())
	got, err := b.Get(ctx, q)
	require.NoError(t, err, "the handle stays open while another provider holds it")
	assert.Equal(t, int64(1), got["v"])
	require.NoError(t, b.Close())
}

func TestValuesAreMsgPack(t *testing.T) {
	p := openTemp(t)
	ctx := context.Background()
	q := storagemodels.NewQuery("t").WithKey("id", "k")
	require.NoError(t, p.Put(ctx, q, storagemodels.Record{"n": int64(5), "ok": true}))

	err := p.DB().View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte("t")).Get([]byte("k"))
		require.NotNil(t, v)
		assert.NotEqual(t, byte('{'), v[0], "stored as msgpack, not JSON")
		return nil
	})
	require.NoError(t, err)

	got, err := p.Get(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, storagemodels.Record{"id": "k", "n": int64(5), "ok": true}, got)
}

func TestScanResumesAfterConcurrentWrites(t *testing.T) {
	p := openTemp(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Put(ctx, storagemodels.NewQuery("t").WithKey("id", fmt.Sprintf("k%02d", i)), storagemodels.Record{}))
	}

	rs, err := p.Scan(ctx, storagemodels.NewQuery("t"), nil, nil)
	require.NoError(t, err)
	first, err := rs.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k00", first["id"])

	// k00 was already returned; deleting it must not shift the cursor.
	require.NoError(t, p.Delete(ctx, storagemodels.NewQuery("t").WithKey("id", "k00")))

	rest, err := datastore.Collect(ctx, rs)
	require.NoError(t, err)
	assert.Len(t, rest, 9)
}

func TestConnectFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.db")
	p, err := registry.Connect(context.Background(), config.ProviderConfig{
		"provider": "bolt",
		"name":     "local",
		"path":     path,
		"timeout":  "2 seconds",
	})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())
	require.NoError(t, p.Close())

	_, err = registry.Connect(context.Background(), config.ProviderConfig{"provider": "bolt"})
	assert.True(t, errors.IsConfiguration(err))
}
