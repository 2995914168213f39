/*
Package genericstore is a backend-agnostic datastore facade. Records are
flat maps of field names to scalar values, addressed by table, key and
optional subkey.

A Store writes to an ordered list of providers. The first provider is the
source of truth: reads, scans, queries and batch operations go to it only,
and every write starts by reading the record it currently holds. Writes
then go to each provider in turn. When provider i fails, the providers
before it are restored to the pre-read state on a best-effort basis and
the failure is returned.

Providers are registered by name in package registry and built from
configuration records:

	providers:
	  - provider: dynamodb
	    region: us-west-2
	  - provider: redis
	    host: cache.internal
	    codec: msgpack

Basic Usage:

	store := genericstore.New(genericstore.WithLogger(logger))
	if err := store.ConnectFile(ctx, "genericstore.yaml"); err != nil {
		return err
	}
	defer store.Close()

	users := store.Table("users").WithKeyName("id")
	err := users.Put(ctx, storagemodels.Record{"id": "u1", "name": "Ada"})

	rs, err := users.Scan(ctx, storagemodels.Conditions{"age": {Operator: storagemodels.OpGe, Value: 30}})
	for {
		ok, err := rs.HasNext(ctx)
		if err != nil || !ok {
			break
		}
		rec, _ := rs.Next(ctx)
		fmt.Println(rec)
	}

Failures are reported as *errors.Error values carrying a kind
(configuration, connection or operation) and the provider, table and key
involved.
*/
package genericstore
