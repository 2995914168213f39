/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package genericstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/suparena/genericstore/config"
	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/registry"
	"github.com/suparena/genericstore/storagemodels"
)

const (
	DefaultAsyncWorkers   = 4
	DefaultAsyncQueueSize = 64
)

// Store fans writes out to an ordered list of providers and serves reads
// from the first one.
type Store struct {
	mu        sync.RWMutex
	providers []datastore.Provider
	logger    *zap.Logger

	async *asyncQueue
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default is zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAsyncWorkers sets how many goroutines run asynchronous writes.
func WithAsyncWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.async.workers = n
		}
	}
}

// WithAsyncQueueSize bounds the number of queued asynchronous writes.
// Enqueueing blocks while the queue is full.
func WithAsyncQueueSize(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.async.size = n
		}
	}
}

// New creates a Store with no providers.
func New(opts ...Option) *Store {
	s := &Store{
		logger: zap.L(),
		async:  &asyncQueue{workers: DefaultAsyncWorkers, size: DefaultAsyncQueueSize},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.async.store = s
	return s
}

// AddProvider appends p. The first provider added is the source of truth
// for reads and pre-reads. Provider names must be unique.
func (s *Store) AddProvider(p datastore.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.providers {
		if existing.Name() == p.Name() {
			return errors.Configurationf("addProvider", "provider with name %q already registered", p.Name())
		}
	}
	s.providers = append(s.providers, p)
	s.logger.Info("provider added", zap.String("provider", p.Name()), zap.Int("index", len(s.providers)-1))
	return nil
}

// Connect builds providers from configuration records, in order, and
// appends them. Providers opened by a failing call are closed again.
// A record without a name is named after its provider, suffixed "#1",
// "#2", ... when that name is already registered.
func (s *Store) Connect(ctx context.Context, cfgs ...config.ProviderConfig) error {
	var opened []datastore.Provider
	for _, cfg := range cfgs {
		if !cfg.Has(config.NameKey) {
			cfg = cfg.WithName(s.freeName(cfg.Provider()))
		}
		p, err := registry.Connect(ctx, cfg)
		if err == nil {
			err = s.AddProvider(p)
			if err != nil {
				_ = p.Close()
			}
		}
		if err != nil {
			s.logger.Error("connecting provider", zap.String("provider", cfg.Provider()), zap.Error(err))
			s.remove(opened)
			return err
		}
		opened = append(opened, p)
	}
	return nil
}

func (s *Store) freeName(base string) string {
	taken := make(map[string]bool)
	for _, p := range s.Providers() {
		taken[p.Name()] = true
	}
	name := base
	for n := 1; taken[name]; n++ {
		name = fmt.Sprintf("%s#%d", base, n)
	}
	return name
}

// ConnectFile loads a YAML configuration file and connects its providers.
func (s *Store) ConnectFile(ctx context.Context, path string) error {
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	return s.Connect(ctx, f.Providers...)
}

func (s *Store) remove(ps []datastore.Provider) {
	if len(ps) == 0 {
		return
	}
	drop := make(map[datastore.Provider]bool, len(ps))
	for _, p := range ps {
		drop[p] = true
		_ = p.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.providers[:0]
	for _, p := range s.providers {
		if !drop[p] {
			kept = append(kept, p)
		}
	}
	s.providers = kept
}

// Providers returns the providers in write order.
func (s *Store) Providers() []datastore.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]datastore.Provider(nil), s.providers...)
}

// Primary returns the provider that serves reads.
func (s *Store) Primary() (datastore.Provider, error) {
	return s.primary("primary")
}

func (s *Store) primary(op string) (datastore.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.providers) == 0 {
		return nil, errors.Configurationf(op, "no providers configured")
	}
	return s.providers[0], nil
}

// Get reads from the primary provider. It returns nil, nil when the
// record does not exist.
func (s *Store) Get(ctx context.Context, q storagemodels.QueryContext) (storagemodels.Record, error) {
	p, err := s.primary("get")
	if err != nil {
		return nil, err
	}
	rec, err := p.Get(ctx, q)
	return rec, errors.Ensure("get", err)
}

// Scan runs on the primary provider.
func (s *Store) Scan(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	p, err := s.primary("scan")
	if err != nil {
		return nil, err
	}
	rs, err := p.Scan(ctx, q, conditions, fields)
	return rs, errors.Ensure("scan", err)
}

// Query runs on the primary provider.
func (s *Store) Query(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string) (datastore.ResultSet, error) {
	p, err := s.primary("query")
	if err != nil {
		return nil, err
	}
	rs, err := p.Query(ctx, q, conditions, fields)
	return rs, errors.Ensure("query", err)
}

// Stream scans on the primary provider and delivers the results on a
// channel.
func (s *Store) Stream(ctx context.Context, q storagemodels.QueryContext, conditions storagemodels.Conditions, fields []string, opts ...storagemodels.StreamOption) (<-chan storagemodels.StreamResult, error) {
	rs, err := s.Scan(ctx, q, conditions, fields)
	if err != nil {
		return nil, err
	}
	return datastore.Stream(ctx, rs, opts...), nil
}

// BatchGet runs on the primary provider only.
func (s *Store) BatchGet(ctx context.Context, conditions []storagemodels.BatchCondition) (map[string][]storagemodels.Record, error) {
	p, err := s.primary("batchGet")
	if err != nil {
		return nil, err
	}
	out, err := p.BatchGet(ctx, conditions)
	return out, errors.Ensure("batchGet", err)
}

// BatchWrite runs on the primary provider only. It is not fanned out and
// nothing is compensated, so the other providers do not see these writes.
func (s *Store) BatchWrite(ctx context.Context, intents []storagemodels.WriteIntent) error {
	p, err := s.primary("batchWrite")
	if err != nil {
		return err
	}
	return errors.Ensure("batchWrite", p.BatchWrite(ctx, intents))
}

// Close drains the asynchronous write queue, then closes every provider
// in reverse order.
func (s *Store) Close() error {
	s.async.close()

	s.mu.Lock()
	providers := s.providers
	s.providers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(providers) - 1; i >= 0; i-- {
		if err := providers[i].Close(); err != nil {
			s.logger.Warn("closing provider", zap.String("provider", providers[i].Name()), zap.Error(err))
			errs = append(errs, errors.Ensure("close", err))
		}
	}
	return errors.Join(errs...)
}
