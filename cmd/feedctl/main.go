// Command feedctl manages the feeds polled by the feedwatch worker.
//
// It talks to the store directly (DB_DRIVER, DATABASE_URL, SQLITE_DSN), so
// it works whether or not the worker is running.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
