// Command bsrvcoreserver is a thin demonstration CLI embedding the
// bsrvcore library: a root cobra.Command with one subcommand per
// operation, outside the core packages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bsrvcoreserver",
		Short: "Run an embeddable HTTP/1.1 server built on bsrvcore",
		Long: `bsrvcoreserver is a demonstration host for the bsrvcore library.

It wires up a Route Table, a Session Map, and, when enabled by flag, the
Prometheus/OpenTelemetry aspects from package aspect, then starts the
Server Facade on the configured listen address.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		routesCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}
