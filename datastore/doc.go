/*
Package datastore defines the provider capability contract and the result
streaming protocol of genericstore.

Every backend adapter implements Provider:

	type Provider interface {
	    Name() string
	    Get(ctx, q) (storagemodels.Record, error)
	    Put(ctx, q, record) error
	    Update(ctx, q, record) error
	    Delete(ctx, q) error
	    BatchGet(ctx, conditions) (map[string][]storagemodels.Record, error)
	    BatchWrite(ctx, intents) error
	    Scan(ctx, q, conditions, fields) (ResultSet, error)
	    Query(ctx, q, conditions, fields) (ResultSet, error)
	    Close() error
	}

Implementations:
  - memory: in-process ordered map with failure injection
  - bolt: embedded bbolt file
  - ddb: DynamoDB
  - redis: Redis
  - sqldb: MySQL / SQLite over database/sql

ResultSet hides backend pagination. Providers describe how to load one page
and NewPagedResultSet does the rest:

	rs, err := datastore.NewPagedResultSet(ctx, func(ctx context.Context, c datastore.Cursor) (datastore.Page, error) {
	    // load one page starting at c; Next == nil on the last page
	})
	for {
	    ok, err := rs.HasNext(ctx)
	    if err != nil || !ok {
	        break
	    }
	    rec, _ := rs.Next(ctx)
	    ...
	}

Stream turns any ResultSet into a channel with progress reporting.
*/
package datastore
