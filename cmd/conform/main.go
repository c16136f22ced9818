// Command conform checks a GraphQL or REST server against its contract
// and load-tests its user flows.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/conform/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
