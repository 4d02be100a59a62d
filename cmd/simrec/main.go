// Command simrec records simulation event files and reads recordings back.
package main

import (
	"os"

	"github.com/roach88/simrec/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
