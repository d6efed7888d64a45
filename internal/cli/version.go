package cli

import (
	"fmt"
	"runtime"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func (a *app) versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if lo.Must(cmd.Flags().GetBool("short")) {
				fmt.Fprintln(cmd.OutOrStdout(), a.version)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "videograb %s (%s/%s, %s)\n", a.version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}

	cmd.Flags().Bool("short", false, "Print only the version number")

	return cmd
}
