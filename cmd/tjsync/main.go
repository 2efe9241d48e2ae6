// Command tjsync uploads, inspects and follows trade journal data in a
// document store.
package main

import (
	"os"

	// Registers the "libsql" driver for remote Turso databases.
	_ "github.com/tursodatabase/go-libsql"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
