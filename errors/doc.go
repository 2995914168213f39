/*
Package errors provides the error taxonomy of genericstore.

Every failure surfaced to a caller is an *Error tagged with one of three kinds:

	KindConfiguration  missing/invalid connection parameters, unset table or key
	KindConnection     backend unreachable or session invalid
	KindOperation      request rejected by the backend, retry exhaustion,
	                   local invariant violation

Kinds are checked with the standard errors.Is against the sentinels or with
the helper functions:

	rec, err := store.Table("users").WithKey("id", "42").Get(ctx)
	if errors.IsConnection(err) {
	    // backend down
	}

	var e *errors.Error
	if errors.As(err, &e) {
	    log.Printf("op=%s provider=%s payload=%s", e.Op, e.Provider, e.Payload)
	}

Providers never return raw backend errors; Ensure wraps anything untagged as
an operation error.
*/
package errors
