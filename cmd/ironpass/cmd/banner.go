package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const banner = `
  _____                 _____
 |_   _|               |  __ \
   | |  _ __ ___  _ __ | |__) |_ _ ___ ___
   | | | '__/ _ \| '_ \|  ___/ _` + "`" + ` / __/ __|
  _| |_| | | (_) | | | | |  | (_| \__ \__ \
 |_____|_|  \___/|_| |_|_|   \__,_|___/___/

`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Deterministic Password Store - Version %s\x1b[0m\n\n", Version)
}

func newVersionCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// The version needs no config or store.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			if plain {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
				return
			}
			printBanner(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&plain, "short", false, "print only the version string")
	return cmd
}
