/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/suparena/genericstore/errors"
)

const (
	DefaultMaxAttempts = 10
	DefaultMinDelay    = 500 * time.Millisecond
	DefaultMaxDelay    = 1500 * time.Millisecond
)

// Policy retries a remote call with linear, jittered backoff: the wait
// before retry n is n * uniform[MinDelay, MaxDelay).
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// Defaults to everything errors.IsPermanent rejects.
	Retryable func(error) bool
	// Sleep waits d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter draws a delay in [min, max).
	Jitter func(min, max time.Duration) time.Duration

	Logger   *zap.Logger
	Provider string
}

// Default returns the standard policy for provider.
func Default(provider string) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		MinDelay:    DefaultMinDelay,
		MaxDelay:    DefaultMaxDelay,
		Provider:    provider,
	}
}

// WithMaxAttempts returns a copy with the attempt cap replaced when n > 0.
func (p Policy) WithMaxAttempts(n int) Policy {
	if n > 0 {
		p.MaxAttempts = n
	}
	return p
}

// WithLogger returns a copy that logs to logger.
func (p Policy) WithLogger(logger *zap.Logger) Policy {
	p.Logger = logger
	return p
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.MinDelay <= 0 {
		p.MinDelay = DefaultMinDelay
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return !errors.IsPermanent(err) }
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	if p.Jitter == nil {
		p.Jitter = jitter
	}
	if p.Logger == nil {
		p.Logger = zap.L()
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	return time.Duration(attempt) * p.Jitter(p.MinDelay, p.MaxDelay)
}

// Wait sleeps for Delay(attempt), returning early when ctx is done.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	p = p.withDefaults()
	return p.Sleep(ctx, time.Duration(attempt)*p.Jitter(p.MinDelay, p.MaxDelay))
}

// Attempts returns the effective attempt cap.
func (p Policy) Attempts() int {
	return p.withDefaults().MaxAttempts
}

// Do runs fn until it succeeds, fails permanently, or MaxAttempts is
// reached. payload is serialized into the exhaustion error.
func (p Policy) Do(ctx context.Context, op string, payload any, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, op, payload, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, op string, payload any, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !p.Retryable(err) {
			// kinded errors are returned as fn produced them; fn may share them
			if errors.KindOf(err) != errors.KindUnknown {
				return zero, err
			}
			return zero, errors.Operation(op, err).WithProvider(p.Provider)
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * p.Jitter(p.MinDelay, p.MaxDelay)
		metrics.GetOrCreateCounter(fmt.Sprintf(`genericstore_retries_total{provider=%q,op=%q}`, p.Provider, op)).Inc()
		p.Logger.Debug("retrying remote call",
			zap.String("provider", p.Provider),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if serr := p.Sleep(ctx, delay); serr != nil {
			return zero, errors.Operation(op, serr).WithProvider(p.Provider).WithPayload(encodePayload(payload))
		}
	}

	body := encodePayload(payload)
	metrics.GetOrCreateCounter(fmt.Sprintf(`genericstore_retry_exhausted_total{provider=%q,op=%q}`, p.Provider, op)).Inc()
	p.Logger.Error("retry attempts exhausted",
		zap.String("provider", p.Provider),
		zap.String("op", op),
		zap.Int("attempts", p.MaxAttempts),
		zap.String("request", body),
		zap.Error(lastErr))

	return zero, errors.Operation(op, fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)).
		WithProvider(p.Provider).
		WithPayload(body)
}

// Payload serializes a request the way exhaustion errors carry it.
func Payload(payload any) string {
	return encodePayload(payload)
}

func encodePayload(payload any) string {
	if payload == nil {
		return ""
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%+v", payload)
	}
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
