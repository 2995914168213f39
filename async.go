/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package genericstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// Callback is invoked once an asynchronous write has finished.
type Callback func(id string, err error)

// Future is the pending result of an asynchronous write.
type Future struct {
	id   string
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{id: uuid.NewString(), done: make(chan struct{})}
}

// ID identifies the write in logs and callbacks.
func (f *Future) ID() string { return f.id }

// Done is closed when the write has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the write's error once Done is closed, nil before.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the write finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

type task struct {
	ctx    context.Context
	op     writeOp
	q      storagemodels.QueryContext
	record storagemodels.Record
	future *Future
	cb     []Callback
}

// asyncQueue runs writes on a bounded pool of workers started on first use.
type asyncQueue struct {
	store   *Store
	workers int
	size    int

	mu     sync.RWMutex
	once   sync.Once
	tasks  chan task
	wg     sync.WaitGroup
	closed bool
}

func (a *asyncQueue) start() {
	a.tasks = make(chan task, a.size)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.store.logger.Debug("async workers started", zap.Int("workers", a.workers), zap.Int("queue", a.size))
}

func (a *asyncQueue) worker() {
	defer a.wg.Done()
	for t := range a.tasks {
		a.run(t)
	}
}

func (a *asyncQueue) run(t task) {
	err := a.store.write(t.ctx, t.op, t.q, t.record)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		a.store.logger.Warn("async write failed", zap.String("id", t.future.id), zap.String("op", string(t.op)), zap.Error(err))
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`genericstore_async_writes_total{outcome=%q}`, outcome)).Inc()
	t.future.complete(err)
	for _, cb := range t.cb {
		cb(t.future.id, err)
	}
}

// submit enqueues t, blocking while the queue is full. After close the
// future fails at once.
func (a *asyncQueue) submit(t task) *Future {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		err := errors.Operationf(string(t.op), "store is closed")
		metrics.GetOrCreateCounter(`genericstore_async_writes_total{outcome="rejected"}`).Inc()
		t.future.complete(err)
		for _, cb := range t.cb {
			cb(t.future.id, err)
		}
		return t.future
	}
	a.once.Do(a.start)
	a.tasks <- t
	return t.future
}

// close stops accepting writes and waits for queued ones to finish.
func (a *asyncQueue) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.once.Do(func() {})
	if a.tasks != nil {
		close(a.tasks)
		a.wg.Wait()
	}
}

func (s *Store) enqueue(ctx context.Context, op writeOp, q storagemodels.QueryContext, record storagemodels.Record, cb []Callback) *Future {
	return s.async.submit(task{
		ctx:    context.WithoutCancel(ctx),
		op:     op,
		q:      q,
		record: record.Clone(),
		future: newFuture(),
		cb:     cb,
	})
}

// PutAsync queues a Put. q and record are copied before returning, and
// the write is not cancelled with ctx.
func (s *Store) PutAsync(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record, cb ...Callback) *Future {
	return s.enqueue(ctx, opPut, q, record, cb)
}

// UpdateAsync queues an Update.
func (s *Store) UpdateAsync(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record, cb ...Callback) *Future {
	return s.enqueue(ctx, opUpdate, q, record, cb)
}

// DeleteAsync queues a Delete.
func (s *Store) DeleteAsync(ctx context.Context, q storagemodels.QueryContext, cb ...Callback) *Future {
	return s.enqueue(ctx, opDelete, q, nil, cb)
}
