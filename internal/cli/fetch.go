package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"videograb/internal/delivery"
)

func (a *app) fetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Download one encoding of a video into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				itag   = lo.Must(cmd.Flags().GetString("itag"))
				outDir = lo.Must(cmd.Flags().GetString("output"))
				force  = lo.Must(cmd.Flags().GetBool("force"))
				quiet  = lo.Must(cmd.Flags().GetBool("quiet"))
			)

			rt, err := a.load(nil)
			if err != nil {
				return err
			}
			defer rt.log.Sync()

			orch, err := a.orchestrator(cmd.Context(), rt)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			rt.log.Info("fetching", zap.String("url", args[0]), zap.String("itag", itag))

			entry, err := orch.Fetch(cmd.Context(), args[0], itag)
			if err != nil {
				return err
			}

			tr, err := delivery.Open(orch.Area(), *entry, rt.log)
			if err != nil {
				return err
			}
			defer tr.Close()

			target := filepath.Join(outDir, filepath.Base(entry.DisplayName))
			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}

			out, err := os.OpenFile(target, flags, 0644)
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}

			var w io.Writer = out
			if !quiet {
				bar := progressbar.DefaultBytes(tr.Size(), "saving")
				w = io.MultiWriter(out, bar)
			}

			_, err = tr.Send(cmd.Context(), w)
			if closeErr := out.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(target)
				return fmt.Errorf("failed to save %s: %w", target, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, humanize.Bytes(uint64(tr.Size())))
			return nil
		},
	}

	cmd.Flags().StringP("itag", "f", "", "Format id from analyze")
	cmd.Flags().StringP("output", "o", ".", "Output directory")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	_ = cmd.MarkFlagRequired("itag")

	return cmd
}
