// Command idalloc mints and inspects identifiers and runs the idalloc HTTP
// service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "idalloc",
		Short:         "Time-ordered 64-bit ID allocator",
		Long:          "idalloc mints collision-free, time-ordered 64-bit identifiers and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newGenerateCmd(),
		newParseCmd(),
		newEncodeCmd(),
		newBenchCmd(),
		newServeCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "idalloc %s\n", version)
			},
		},
	)
	return rootCmd
}
