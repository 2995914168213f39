/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every error surfaced by the facade and its providers.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate here.
	KindUnknown Kind = iota
	// KindConfiguration covers missing/invalid connection parameters and
	// unset table or key fields.
	KindConfiguration
	// KindConnection covers unreachable backends and invalid sessions.
	KindConnection
	// KindOperation covers requests rejected by the backend, retry
	// exhaustion and local invariant violations.
	KindOperation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindOperation:
		return "operation"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrOperation     = errors.New("operation error")
)

// Error is the single structured error type of the library.
type Error struct {
	Kind     Kind
	Op       string
	Provider string
	Table    string
	Key      string
	Subkey   string
	// Payload holds the serialized request for diagnosability (retry exhaustion).
	Payload string
	// Permanent marks an error the retry helper must not retry.
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Provider != "" {
		fmt.Fprintf(&b, " [%s]", e.Provider)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, " table=%q", e.Table)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%q", e.Key)
	}
	if e.Subkey != "" {
		fmt.Fprintf(&b, " subkey=%q", e.Subkey)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Payload != "" {
		b.WriteString(" (request: ")
		b.WriteString(e.Payload)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrOperation:
		return e.Kind == KindOperation
	}
	return false
}

// WithProvider returns e after recording the provider name.
func (e *Error) WithProvider(name string) *Error {
	e.Provider = name
	return e
}

// WithTarget returns e after recording the addressed table/key/subkey.
func (e *Error) WithTarget(table, key, subkey string) *Error {
	e.Table = table
	e.Key = key
	e.Subkey = subkey
	return e
}

// WithPayload returns e after recording the serialized request.
func (e *Error) WithPayload(payload string) *Error {
	e.Payload = payload
	return e
}

// AsPermanent marks e as not retryable.
func (e *Error) AsPermanent() *Error {
	e.Permanent = true
	return e
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration wraps err as a configuration error.
func Configuration(op string, err error) *Error {
	return newError(KindConfiguration, op, err)
}

// Configurationf builds a configuration error from a message.
func Configurationf(op, format string, args ...any) *Error {
	return newError(KindConfiguration, op, fmt.Errorf(format, args...))
}

// Connection wraps err as a connection error.
func Connection(op string, err error) *Error {
	return newError(KindConnection, op, err)
}

// Operation wraps err as an operation error.
func Operation(op string, err error) *Error {
	return newError(KindOperation, op, err)
}

// Operationf builds an operation error from a message.
func Operationf(op, format string, args ...any) *Error {
	return newError(KindOperation, op, fmt.Errorf(format, args...))
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Ensure returns err unchanged when it already carries a kind, and wraps it
// as an operation error otherwise. Context errors are wrapped as operation
// errors too.
func Ensure(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return Operation(op, err)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Permanent || e.Kind == KindConfiguration
	}
	return false
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsConnection checks if an error is a connection error
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsOperation checks if an error is an operation error
func IsOperation(err error) bool {
	return errors.Is(err, ErrOperation)
}

// Is and As forward to the standard library so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// New forwards to the standard library.
func New(text string) error { return errors.New(text) }

// Join forwards to the standard library.
func Join(errs ...error) error { return errors.Join(errs...) }
