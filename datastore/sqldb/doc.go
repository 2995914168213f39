/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package sqldb provides a relational implementation of datastore.Provider
over database/sql, with the MySQL and SQLite (pure Go) drivers.

Each table is a SQL table whose columns are the record fields; the key and
subkey fields are its primary key. Tables are not created here.

Configuration:

	providers:
	  - provider: sql
	    driver: mysql
	    database_host: db.internal
	    database_name: app
	    database_user: app
	    database_password: ${DB_PASSWORD}
	    max_open_conns: 10
	  - provider: sql
	    driver: sqlite
	    dsn: /var/lib/app/cache.db

Put replaces the whole row. Update on a missing row does nothing. NULL
columns are omitted from returned records. Scan and Query push conditions
into the WHERE clause, beginsWith becoming LIKE, and page with
LIMIT/OFFSET ordered by the key columns.
*/
package sqldb
