// Package main is the hightrade binary: `run` starts the monitoring
// daemon; the remaining subcommands talk to a running daemon through the
// filesystem command queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes of the command surface.
const (
	exitOK           = 0
	exitInvalidState = 2
	exitUnknownVerb  = 3
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "hightrade",
		Short:         "Crisis monitoring and defensive paper-trading daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(os.Stderr, "unknown verb %q\n", args[0])
			os.Exit(exitUnknownVerb)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "hightrade.yaml",
		"path to the configuration file")

	root.AddCommand(newRunCmd(&cfgPath))
	root.AddCommand(clientCommands(&cfgPath)...)
	return root
}
