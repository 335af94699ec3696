// Command skdpd is the SKDP reference CLI: issue key-hierarchy records,
// run a branch server, dial a device connection, and print version info.
// Subcommand dispatch follows cmd/quantum-vpn/main.go's shape, rebuilt on
// cobra (cross-pack enrichment, see DESIGN.md) in place of the teacher's
// stdlib flag/switch dispatch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skdp/skdp/pkg/version"
)

func main() {
	root := &cobra.Command{
		Use:   "skdpd",
		Short: "SKDP reference server, client, and key-issuing tool",
	}

	root.AddCommand(
		newKeygenCommand(),
		newServeCommand(),
		newDialCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(version.Full())
			return nil
		},
	}
}
