package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"videograb/internal/api"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.load(map[string]*pflag.Flag{
				"listen_addr": cmd.Flags().Lookup("addr"),
			})
			if err != nil {
				return err
			}
			defer rt.log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, err := a.orchestrator(ctx, rt)
			if err != nil {
				return err
			}

			rt.cfg.YtdlCookiesPath = rt.paths.CookiesPath
			server := api.NewServer(rt.cfg, orch, rt.log, a.version)
			if err := server.Start(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Server listening on http://%s\n", server.GetActualAddr())
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

			<-ctx.Done()

			rt.log.Info("shutting down")
			if err := server.Stop(); err != nil {
				rt.log.Error("shutdown failed", zap.Error(err))
				return err
			}

			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8000)")

	return cmd
}
