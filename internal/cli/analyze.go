package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func (a *app) analyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze URL",
		Short: "List the playable mp4 encodings of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.load(nil)
			if err != nil {
				return err
			}
			defer rt.log.Sync()

			orch, err := a.orchestrator(cmd.Context(), rt)
			if err != nil {
				return err
			}

			result, err := orch.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if lo.Must(cmd.Flags().GetBool("json")) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Title)
			if result.Thumbnail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Thumbnail)
			}
			fmt.Fprintln(cmd.OutOrStdout())

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ITAG\tQUALITY\tTYPE\tSIZE")
			for _, s := range result.Streams {
				size := "unknown"
				if s.ApproximateSizeBytes > 0 {
					size = "~" + humanize.Bytes(uint64(s.ApproximateSizeBytes))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.QualityLabel, s.MimeType, size)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Print the result as JSON")

	return cmd
}
