// Command spillctl inspects and maintains spill eviction directories.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/spill/cmd/spillctl/commands"
)

// Set via ldflags.
var version = "dev"

func main() {
	commands.Version = version

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
