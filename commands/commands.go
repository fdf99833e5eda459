// Package commands implements the subcommands of the rb-browser binary.
package commands

import (
	"fmt"
	"os"
)

// Report an error that happened before logging was configured, and exit.
func fatal(message, configPath string, err error) {
	fmt.Fprintf(os.Stderr, "%s %s: %s\n", message, configPath, err)
	os.Exit(1)
}
