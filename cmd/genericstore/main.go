/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command genericstore runs single operations against the providers of a
// configuration file.
package main

import (
	"os"

	_ "github.com/suparena/genericstore/datastore/bolt"
	_ "github.com/suparena/genericstore/datastore/ddb"
	_ "github.com/suparena/genericstore/datastore/memory"
	_ "github.com/suparena/genericstore/datastore/redis"
	_ "github.com/suparena/genericstore/datastore/sqldb"
)

func main() {
	if err := execute(os.Stdout, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
