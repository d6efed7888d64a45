package cli

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"videograb/internal/config"
	"videograb/pkg/models"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(
		a.configShowCommand(),
		a.configInitCommand(),
		a.configPathCommand(),
	)

	return cmd
}

func (a *app) configShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.load(nil)
			if err != nil {
				return err
			}

			if lo.Must(cmd.Flags().GetBool("json")) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rt.cfg)
			}

			data, err := config.Encode(rt.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Print as JSON")

	return cmd
}

func (a *app) configInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.resolveConfigPath()
			existed := fileExists(path)

			// NewManager writes the defaults when the file is missing
			mgr, err := config.NewManager(path)
			if err != nil {
				return err
			}

			if existed {
				if !lo.Must(cmd.Flags().GetBool("force")) {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				if err := mgr.Update(func(cfg *models.Config) {
					*cfg = *models.DefaultConfig()
				}); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite an existing file")

	return cmd
}

func (a *app) configPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.resolveConfigPath())
		},
	}
}
