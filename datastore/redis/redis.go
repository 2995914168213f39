/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package redis

import (
	"context"
	"net"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/datastore/codec"
	"github.com/suparena/genericstore/datastore/connpool"
	"github.com/suparena/genericstore/datastore/retry"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const ProviderName = "redis"

var clients = connpool.New[*goredis.Client]()

func init() {
	registry.RegisterProvider(ProviderName, Connect)
}

// Options configures a Redis provider.
type Options struct {
	Name     string
	PageSize int
	Codec    codec.Codec
	Retry    retry.Policy
	Logger   *zap.Logger
}

// Provider implements datastore.Provider over one Redis database. Every
// record is a string value under table::key[::subkey].
type Provider struct {
	client   goredis.UniversalClient
	name     string
	pageSize int
	codec    codec.Codec
	retry    retry.Policy
	logger   *zap.Logger
	release  func() error
}

var _ datastore.Provider = (*Provider)(nil)

// Connect builds a provider from configuration. Recognized keys: host,
// port, password, db, page_size, codec, max_attempts.
func Connect(ctx context.Context, cfg config.ProviderConfig) (datastore.Provider, error) {
	if cfg.Has("slaves") || cfg.Has("replicas") {
		return nil, errors.Configurationf("connect", "redis: replica configuration is not supported")
	}
	host := cfg.StringDefault("host", "localhost")
	port, err := cfg.IntDefault("port", 6379)
	if err != nil {
		return nil, err
	}
	db, err := cfg.IntDefault("db", 0)
	if err != nil {
		return nil, err
	}
	password := cfg.StringDefault("password", "")
	pageSize, err := cfg.IntDefault("page_size", datastore.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := cfg.IntDefault("max_attempts", retry.DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	c, err := codec.ByName(cfg.StringDefault("codec", ""))
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	key := connpool.Key(ProviderName, addr, strconv.Itoa(db), connpool.Secret(password))
	client, err := clients.Acquire(key, func() (*goredis.Client, error) {
		zap.L().Info("redis client initialized", zap.String("addr", addr), zap.Int("db", db))
		return goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db}), nil
	})
	if err != nil {
		return nil, err
	}

	p := New(client, Options{
		Name:     cfg.Name(),
		PageSize: pageSize,
		Codec:    c,
		Retry:    retry.Default(ProviderName).WithMaxAttempts(maxAttempts),
	})
	p.release = func() error { return clients.Release(key) }

	if err := p.Ping(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, opts Options) *Provider {
	if opts.Name == "" {
		opts.Name = ProviderName
	}
	if opts.PageSize <= 0 {
		opts.PageSize = datastore.DefaultPageSize
	}
	if opts.Codec == nil {
		opts.Codec = codec.JSON
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
		client:   client,
		name:     opts.Name,
		pageSize: opts.PageSize,
		codec:    opts.Codec,
		retry:    opts.Retry,
		logger:   opts.Logger,
	}
}

func (p *Provider) Name() string { return p.name }

// Client exposes the underlying client.
func (p *Provider) Client() goredis.UniversalClient { return p.client }

// Ping checks the server is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	return p.do(ctx, "connect", storagemodels.QueryContext{}, nil, func(ctx context.Context) error {
		return p.client.Ping(ctx).Err()
	})
}

// storageKey renders table::key[::subkey].
func storageKey(q storagemodels.QueryContext) string {
	return q.Table + storagemodels.KeyDelimiter + q.CompositeKey()
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

func (p *Provider) decode(op string, q storagemodels.QueryContext, raw []byte) (storagemodels.Record, error) {
	rec, err := p.codec.Unmarshal(raw)
	if err != nil {
		return nil, errors.Operation(op, err).WithProvider(p.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue).AsPermanent()
	}
	return rec, nil
}

func (p *Provider) encode(op string, q storagemodels.QueryContext, rec storagemodels.Record) ([]byte, error) {
	data, err := p.codec.Marshal(rec)
	if err != nil {
		return nil, errors.Operation(op, err).WithProvider(p.name).WithTarget(q.Table, q.KeyValue, q.SubkeyValue).AsPermanent()
	}
	return data, nil
}

// Get returns nil, nil when the key does not exist.
func (p *Provider) Get(ctx context.Context, q storagemodels.QueryContext) (storagemodels.Record, error) {
	if err := q.ValidateKey("get"); err != nil {
		return nil, err
	}
	raw, err := call(ctx, p, "get", q, q, func(ctx context.Context) ([]byte, error) {
		b, err := p.client.Get(ctx, storageKey(q)).Bytes()
		if err == goredis.Nil {
			return nil, nil
		}
		return b, err
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return p.decode("get", q, raw)
}

func (p *Provider) Put(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("put", q, record)
	if err != nil {
		return err
	}
	data, err := p.encode("put", q, rec)
	if err != nil {
		return err
	}
	return p.do(ctx, "put", q, rec, func(ctx context.Context) error {
		return p.client.Set(ctx, storageKey(q), data, 0).Err()
	})
}

// Update merges into the stored value under WATCH, so a concurrent writer
// aborts the transaction and the merge is retried. An absent key is
// created from the supplied fields.
func (p *Provider) Update(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	rec, err := datastore.PrepareWrite("update", q, record)
	if err != nil {
		return err
	}
	key := storageKey(q)
	return p.do(ctx, "update", q, rec, func(ctx context.Context) error {
		return p.client.Watch(ctx, func(tx *goredis.Tx) error {
			merged := rec
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case err == goredis.Nil:
			case err != nil:
				return err
			default:
				cur, err := p.decode("update", q, raw)
				if err != nil {
					return err
				}
				merged = cur.Merge(rec)
			}
			data, err := p.encode("update", q, merged)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
	})
}

func (p *Provider) Delete(ctx context.Context, q storagemodels.QueryContext) error {
	if err := q.ValidateKey("delete"); err != nil {
		return err
	}
	return p.do(ctx, "delete", q, q, func(ctx context.Context) error {
		return p.client.Del(ctx, storageKey(q)).Err()
	})
}

// BatchGet reads every addressed key with a single MGET.
func (p *Provider) BatchGet(ctx context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error) {
	queries := make([]storagemodels.QueryContext, 0, len(conditions))
	keys := make([]string, 0, len(conditions))
	for _, c := range conditions {
		q, err := c.Query()
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
		keys = append(keys, storageKey(q))
	}
	out := make(map[string][]storagemodels.Record)
	if len(keys) == 0 {
		return out, nil
	}

	values, err := call(ctx, p, "batchGet", storagemodels.QueryContext{}, conditions, func(ctx context.Context) ([]any, error) {
		return p.client.MGet(ctx, keys...).Result()
	})
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := p.decode("batchGet", queries[i], []byte(s))
		if err != nil {
			return nil, err
		}
		out[queries[i].Table] = append(out[queries[i].Table], rec)
	}
	return out, nil
}

// BatchWrite sends all intents in one pipeline, in caller order.
func (p *Provider) BatchWrite(ctx context.Context, intents []storagemodels.WriteIntent) error {
	type prepared struct {
		key  string
		data []byte
	}
	ops := make([]prepared, 0, len(intents))
	for _, w := range intents {
		q, err := w.Query()
		if err != nil {
			return err
		}
		if w.Action == storagemodels.ActionDelete {
			ops = append(ops, prepared{key: storageKey(q)})
			continue
		}
		rec, err := datastore.PrepareWrite("batchWrite", q, w.Data)
		if err != nil {
			return err
		}
		data, err := p.encode("batchWrite", q, rec)
		if err != nil {
			return err
		}
		ops = append(ops, prepared{key: storageKey(q), data: data})
	}
	if len(ops) == 0 {
		return nil
	}

	return p.do(ctx, "batchWrite", storagemodels.QueryContext{}, intents, func(ctx context.Context) error {
		_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, op := range ops {
				if op.data == nil {
					pipe.Del(ctx, op.key)
				} else {
					pipe.Set(ctx, op.key, op.data, 0)
				}
			}
			return nil
		})
		return err
	})
}

// Close releases the pooled client.
func (p *Provider) Close() error {
	if p.release != nil {
		return p.release()
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
