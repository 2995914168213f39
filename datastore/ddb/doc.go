/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package ddb provides a DynamoDB implementation of datastore.Provider.

Tables must already exist. The key field is the partition key and the
subkey field, when used, is the sort key. Key attributes are written as S
unless listed in numeric_keys.

Configuration:

	providers:
	  - provider: dynamodb
	    region: us-west-2
	    endpoint: http://localhost:8000   # optional, DynamoDB Local
	    access_key: ${AWS_ACCESS_KEY_ID}  # optional, default chain otherwise
	    secret_key: ${AWS_SECRET_ACCESS_KEY}
	    page_size: 25
	    max_attempts: 10
	    numeric_keys: [seq]

Every request runs under retry.Policy. Throttling and transport failures
are retried with linear jittered backoff; validation and missing-table
errors fail at once. Batch requests are split at the service limits (100
keys per BatchGetItem, 25 items per BatchWriteItem) and unprocessed
entries are resubmitted.

Scan and Query set Limit to the page size and resume from
LastEvaluatedKey, so filtered pages may be empty while more remain.
*/
package ddb
