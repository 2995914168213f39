/*
Package config holds provider configuration records.

A configuration file lists providers in fan-out order; the first one is the
source of truth for reads:

	providers:
	  - provider: dynamodb
	    region: us-west-2
	    endpoint: ${DDB_ENDPOINT}
	  - provider: redis
	    host: localhost
	    port: 6379
	    codec: msgpack

Every record carries a "provider" discriminator that the registry resolves
to a factory. The remaining keys are provider-specific.
*/
package config
