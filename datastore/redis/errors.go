/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/suparena/genericstore/errors"
)

// classify maps a client error onto the error taxonomy. Error replies
// from the server are permanent; an aborted WATCH transaction, transport
// failures and pool timeouts are retried.
func classify(op string, err error) *errors.Error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Operation(op, err)
	}
	if errors.Is(err, goredis.TxFailedErr) {
		return errors.Connection(op, err)
	}
	var reply goredis.Error
	if errors.As(err, &reply) {
		return errors.Operation(op, err).AsPermanent()
	}
	return errors.Connection(op, err)
}
