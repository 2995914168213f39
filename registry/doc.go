/*
Package registry maps provider discriminators to their factories.

Each provider package registers itself in init():

	func init() {
	    registry.RegisterProvider("redis", Connect)
	}

Binaries choose their backends by importing the provider packages, usually
with a blank import:

	import _ "github.com/suparena/genericstore/datastore/redis"

Connect then resolves a configuration record's "provider" field:

	p, err := registry.Connect(ctx, config.ProviderConfig{"provider": "redis", "host": "localhost"})

An unknown or missing discriminator is a configuration error. Registering
the same name twice panics.
*/
package registry
