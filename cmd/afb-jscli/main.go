// Command afb-jscli runs test scenarios against afb bindings.
package main

import (
	"fmt"
	"os"

	"github.com/redpesk-addons/afb-jscli/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "afb-jscli: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
