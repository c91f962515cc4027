// Brigade server — the multi-agent culinary reasoning service: HTTP API,
// streaming chat pipeline, and admin subcommands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/umami-labs/brigade/pkg/version"
)

// errHardViolation marks a broken invariant found by an admin command.
// Soft failures exit 1; hard violations exit 2.
var errHardViolation = errors.New("hard invariant violation")

var rootCmd = &cobra.Command{
	Use:     "brigade",
	Short:   "Brigade - culinary reasoning server",
	Long:    "Brigade runs the culinary reasoning server: a streaming chat API backed by a policy-driven agent pipeline, nutrition governance, and compound verification.",
	Version: version.Full(),
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errHardViolation) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
