/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldb

import (
	"context"
	"database/sql/driver"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"

	"github.com/suparena/genericstore/errors"
)

// MySQL server error numbers worth another attempt.
var mysqlRetryable = map[uint16]bool{
	1040: true, // too many connections
	1205: true, // lock wait timeout
	1213: true, // deadlock
	2006: true, // server has gone away
	2013: true, // lost connection during query
}

// MySQL server error numbers that point at the deployment.
var mysqlConfiguration = map[uint16]bool{
	1044: true, // access denied to database
	1045: true, // access denied for user
	1049: true, // unknown database
	1146: true, // table does not exist
}

// SQLite result codes worth another attempt.
var sqliteRetryable = map[int]bool{
	5: true, // SQLITE_BUSY
	6: true, // SQLITE_LOCKED
}

// classify maps a driver error onto the error taxonomy.
func classify(op string, err error) *errors.Error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Operation(op, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return errors.Connection(op, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch {
		case mysqlRetryable[myErr.Number]:
			return errors.Connection(op, err)
		case mysqlConfiguration[myErr.Number]:
			return errors.Configuration(op, err)
		}
		return errors.Operation(op, err).AsPermanent()
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// extended result codes keep the primary code in the low byte
		if sqliteRetryable[liteErr.Code()&0xff] {
			return errors.Connection(op, err)
		}
		return errors.Operation(op, err).AsPermanent()
	}

	return errors.Connection(op, err)
}
