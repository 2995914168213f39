/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package genericstore

import (
	"context"
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/datastore"
	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

type writeOp string

const (
	opPut    writeOp = "put"
	opUpdate writeOp = "update"
	opDelete writeOp = "delete"
)

// Put replaces the record on every provider. A key or subkey value in
// the record overrides the one in q.
func (s *Store) Put(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	return s.write(ctx, opPut, q, record)
}

// Update applies the supplied fields on every provider.
func (s *Store) Update(ctx context.Context, q storagemodels.QueryContext, record storagemodels.Record) error {
	return s.write(ctx, opUpdate, q, record)
}

// Delete removes the record from every provider.
func (s *Store) Delete(ctx context.Context, q storagemodels.QueryContext) error {
	return s.write(ctx, opDelete, q, nil)
}

func (s *Store) write(ctx context.Context, op writeOp, q storagemodels.QueryContext, record storagemodels.Record) error {
	metrics.GetOrCreateCounter(fmt.Sprintf(`genericstore_writes_total{op=%q}`, op)).Inc()
	err := s.fanOut(ctx, op, q, record)
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`genericstore_write_failures_total{op=%q}`, op)).Inc()
	}
	return err
}

// fanOut applies op to every provider in order. The record currently held
// by the primary is read first; when provider i fails, providers 0..i-1
// are brought back to it and the failure is returned.
func (s *Store) fanOut(ctx context.Context, op writeOp, q storagemodels.QueryContext, record storagemodels.Record) error {
	providers := s.Providers()
	if len(providers) == 0 {
		return errors.Configurationf(string(op), "no providers configured")
	}
	q = q.ForRecord(record)
	if err := q.ValidateKey(string(op)); err != nil {
		return err
	}

	cur, err := providers[0].Get(ctx, q)
	if err != nil {
		s.logger.Error("pre-read failed, nothing written",
			zap.String("op", string(op)),
			zap.String("provider", providers[0].Name()),
			zap.String("table", q.Table),
			zap.String("key", q.CompositeKey()),
			zap.Error(err))
		return errors.Ensure("get", err)
	}

	for i, p := range providers {
		if err := apply(ctx, p, op, q, record); err != nil {
			s.logger.Error("write failed",
				zap.String("op", string(op)),
				zap.String("provider", p.Name()),
				zap.Int("index", i),
				zap.String("table", q.Table),
				zap.String("key", q.CompositeKey()),
				zap.Error(err))
			s.compensate(ctx, op, providers[:i], q, record, cur)
			return errors.Ensure(string(op), err)
		}
	}
	return nil
}

func apply(ctx context.Context, p datastore.Provider, op writeOp, q storagemodels.QueryContext, record storagemodels.Record) error {
	switch op {
	case opPut:
		return p.Put(ctx, q, record)
	case opUpdate:
		return p.Update(ctx, q, record)
	default:
		return p.Delete(ctx, q)
	}
}

// rollbackFields returns the fields of cur that the update request named.
func rollbackFields(cur, request storagemodels.Record) storagemodels.Record {
	out := make(storagemodels.Record, len(request))
	for field := range request {
		if v, ok := cur[field]; ok {
			out[field] = v
		}
	}
	return out
}

// compensate restores cur on the providers that already applied op. It
// runs even when ctx is cancelled. Failures are logged and counted only.
func (s *Store) compensate(ctx context.Context, op writeOp, done []datastore.Provider, q storagemodels.QueryContext, request, cur storagemodels.Record) {
	if len(done) == 0 {
		return
	}
	if cur == nil {
		s.logger.Warn("no prior record, skipping compensation",
			zap.String("op", string(op)),
			zap.String("table", q.Table),
			zap.String("key", q.CompositeKey()),
			zap.Int("providers", len(done)))
		return
	}

	payload := cur
	if op == opUpdate {
		payload = rollbackFields(cur, request)
		if len(payload) == 0 {
			s.logger.Info("update touched no existing fields, skipping compensation",
				zap.String("table", q.Table),
				zap.String("key", q.CompositeKey()))
			return
		}
	}

	cctx := context.WithoutCancel(ctx)
	for _, p := range done {
		var err error
		if op == opUpdate {
			err = p.Update(cctx, q, payload)
		} else {
			err = p.Put(cctx, q, payload)
		}

		outcome := "ok"
		if err != nil {
			outcome = "failed"
			s.logger.Error("compensation failed",
				zap.String("op", string(op)),
				zap.String("provider", p.Name()),
				zap.String("table", q.Table),
				zap.String("key", q.CompositeKey()),
				zap.Error(err))
		} else {
			s.logger.Info("compensated",
				zap.String("op", string(op)),
				zap.String("provider", p.Name()),
				zap.String("table", q.Table),
				zap.String("key", q.CompositeKey()))
		}
		metrics.GetOrCreateCounter(fmt.Sprintf(`genericstore_compensations_total{op=%q,outcome=%q}`, op, outcome)).Inc()
	}
}
