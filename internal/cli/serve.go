package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mithrel/oneshot/internal/daemon"
)

func newServeCmd() *cobra.Command {
	var maxInFlight int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the one-shot ping protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd) // initialized via PersistentPreRunE
			if cmd.Flags().Changed("max-in-flight") {
				app.Cfg.Set("server.max_in_flight", maxInFlight)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting oneshot server (%s)...\n", app.Cfg.GetString("listen.network"))
			return daemon.Run(cmd.Context(), app)
		},
	}
	cmd.Flags().IntVar(&maxInFlight, "max-in-flight", 16, "requests per connection handed to the service before responses are written")
	return cmd
}
