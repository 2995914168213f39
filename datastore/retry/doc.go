/*
Package retry wraps remote provider calls in a bounded, jittered retry loop.

The delay before retry n is n * uniform[MinDelay, MaxDelay), 500ms to 1500ms
by default, for at most 10 attempts. When attempts run out the last error is
returned as an operation error carrying the JSON-encoded request:

	p := retry.Default("redis").WithMaxAttempts(cfg.IntDefault("max_attempts", 0))
	rec, err := retry.Value(ctx, p, "get", q, func(ctx context.Context) (storagemodels.Record, error) {
	    return fetch(ctx, q)
	})

Configuration errors, operation errors marked permanent, and context
cancellation are never retried. Network-bound providers use this for every
call, including page fetches; in-process providers do not.
*/
package retry
