// Command infraktctl is the operator CLI: a thin HTTP client against a
// running infraktd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/infrakt/infrakt/api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\x1b[31m%v\x1b[0m\n", err)
		os.Exit(1)
	}
}
