/*
Package storagemodels defines the data structures shared by the facade and
every provider.

Key Types:

QueryContext:
The table/key/subkey addressing of one operation. It is an immutable value,
so a context captured for one call can never be reset or altered by another:

	q := storagemodels.NewQuery("users").
	    WithKey("id", "42").
	    WithSubkey("version", "3")

Record:
A flat mapping of field name to scalar value (string, int64, float64, bool):

	rec := storagemodels.Record{"id": "42", "contents": "v1", "score": int64(7)}

Conditions:
The scan/query predicate language, one {operator, value} per field:

	conds := storagemodels.Conditions{
	    "status": storagemodels.Eq("active"),
	    "name":   storagemodels.BeginsWith("jo"),
	    "score":  {Operator: storagemodels.OpGe, Value: int64(10)},
	}

BatchCondition and WriteIntent:
The batchGet/batchWrite formats, decodable from
{"table", "key", "subkey", "action", "data"} JSON objects.
*/
package storagemodels
