// Command possync runs and administers the point-of-sale sync engine.
package main

import (
	"context"
	"os"

	"github.com/roach88/possync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
