/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package redis provides a Redis implementation of datastore.Provider.

Records are stored as string values under "table::key" or
"table::key::subkey", so key values must not contain "::". Values are JSON
by default, which keeps existing data readable, or MessagePack when
codec is "msgpack".

Configuration:

	providers:
	  - provider: redis
	    host: localhost
	    port: 6379
	    db: 0
	    password: ${REDIS_PASSWORD}
	    codec: json
	    page_size: 100

Clients are shared per address and database. Update is an optimistic
WATCH/MULTI merge. Scan and Query iterate with SCAN, whose cursor is the
ResultSet cursor; Query narrows the MATCH pattern to the key value.
Replica configuration is rejected.
*/
package redis
