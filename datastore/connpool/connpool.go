/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package connpool shares backend clients between provider instances that
// connect with the same parameters.
package connpool

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry[C any] struct {
	conn C
	refs int
}

// Pool holds one connection per key with reference counts. Concurrent
// Acquire calls for the same key open the connection exactly once.
type Pool[C any] struct {
	conns *xsync.MapOf[string, entry[C]]
}

func New[C any]() *Pool[C] {
	return &Pool[C]{conns: xsync.NewMapOf[string, entry[C]]()}
}

// Key joins connection parameters into a pool key.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// Secret returns a digest of a credential for use as a Key part, so that
// clients opened with different credentials are never shared and the
// credential itself is not kept in the pool.
func Secret(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Acquire returns the pooled connection for key, calling open when there
// is none. A failed open is not cached.
func (p *Pool[C]) Acquire(key string, open func() (C, error)) (C, error) {
	var openErr error
	e, _ := p.conns.Compute(key, func(old entry[C], loaded bool) (entry[C], bool) {
		if loaded {
			old.refs++
			return old, false
		}
		conn, err := open()
		if err != nil {
			openErr = err
			return old, true
		}
		return entry[C]{conn: conn, refs: 1}, false
	})
	if openErr != nil {
		var zero C
		return zero, openErr
	}
	return e.conn, nil
}

// Release drops one reference to key and closes the connection when none
// remain.
func (p *Pool[C]) Release(key string) error {
	var toClose *C
	p.conns.Compute(key, func(old entry[C], loaded bool) (entry[C], bool) {
		if !loaded {
			return old, true
		}
		old.refs--
		if old.refs > 0 {
			return old, false
		}
		conn := old.conn
		toClose = &conn
		return old, true
	})
	if toClose != nil {
		return closeConn(*toClose)
	}
	return nil
}

// Len reports the number of pooled connections.
func (p *Pool[C]) Len() int {
	return p.conns.Size()
}

// Close closes every pooled connection regardless of references.
func (p *Pool[C]) Close() error {
	var firstErr error
	p.conns.Range(func(key string, e entry[C]) bool {
		p.conns.Delete(key)
		if err := closeConn(e.conn); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

func closeConn[C any](conn C) error {
	if c, ok := any(conn).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
