// Command loom is the Loom CLI. It serves the built-in demo application
// over the live protocol and benchmarks a running server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	loomerrors "github.com/loomui/loom/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Server-driven UI runtime for Go",
		Long: `Loom runs declarative component trees on the server and streams
patches to connected clients over WebSocket.

Applications embed the runtime directly; this CLI is for operating
and exercising it:

  • serve    run the built-in demo app (smoke-tests the wire protocol)
  • bench    drive load against a running server
  • version  print build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		benchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var le *loomerrors.Error
		if errors.As(err, &le) {
			fmt.Fprintln(os.Stderr, le.Format())
		} else {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		os.Exit(1)
	}
}
