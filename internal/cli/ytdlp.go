package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func (a *app) ytdlpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ytdlp",
		Short: "Manage the bundled yt-dlp binary",
	}

	cmd.AddCommand(
		a.ytdlpInstallCommand(),
		a.ytdlpUpdateCommand(),
		a.ytdlpPathCommand(),
	)

	return cmd
}

func (a *app) ytdlpInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Download yt-dlp if it is not installed yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.load(nil)
			if err != nil {
				return err
			}
			defer rt.log.Sync()

			mgr := a.newYtdl(rt.paths.ToolsDir, rt.log)
			path, err := mgr.EnsureInstalled(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp %s installed at %s\n", mgr.GetCurrentVersion(), path)
			return nil
		},
	}
}

func (a *app) ytdlpUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update yt-dlp to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.load(nil)
			if err != nil {
				return err
			}
			defer rt.log.Sync()

			mgr := a.newYtdl(rt.paths.ToolsDir, rt.log)

			if lo.Must(cmd.Flags().GetBool("check")) {
				latest, hasUpdate, err := mgr.CheckForUpdate(cmd.Context())
				if err != nil {
					return err
				}
				if hasUpdate {
					fmt.Fprintf(cmd.OutOrStdout(), "Update available: %s -> %s\n", lo.Ternary(mgr.GetCurrentVersion() == "", "none", mgr.GetCurrentVersion()), latest)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp is up to date (%s)\n", latest)
				}
				return nil
			}

			updated, err := mgr.AutoUpdate(cmd.Context())
			if err != nil {
				return err
			}
			if updated {
				fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp updated to %s\n", mgr.GetCurrentVersion())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp is up to date (%s)\n", mgr.GetCurrentVersion())
			}
			return nil
		},
	}

	cmd.Flags().Bool("check", false, "Only report whether an update is available")

	return cmd
}

func (a *app) ytdlpPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the yt-dlp binary that would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.load(nil)
			if err != nil {
				return err
			}
			defer rt.log.Sync()

			mgr := a.newYtdl(rt.paths.ToolsDir, rt.log)
			if mgr.IsInstalled() {
				fmt.Fprintln(cmd.OutOrStdout(), mgr.GetYtdlpPath())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), rt.cfg.YtdlPath)
			}
			return nil
		},
	}
}
