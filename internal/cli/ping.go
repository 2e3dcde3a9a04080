package cli

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mithrel/oneshot/internal/client"
	"github.com/mithrel/oneshot/internal/transport"
	"github.com/mithrel/oneshot/internal/wire"
)

func newPingCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping [text]",
		Short: "Send one request to a oneshot server and print the response",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			text := "ping"
			if len(args) == 1 {
				text = args[0]
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = app.Cfg.GetDuration("client.timeout")
			}

			network := app.Cfg.GetString("listen.network")
			addr := strings.TrimSpace(app.Cfg.GetString("listen.addr"))
			if addr == "" && network == "unix" {
				p, err := transport.SocketPath()
				if err != nil {
					return err
				}
				addr = p
			}

			c := &client.Client{Network: network, Addr: addr, Timeout: timeout}
			if network == "quic" {
				tlsConf, err := clientTLS(app)
				if err != nil {
					return err
				}
				if tlsConf == nil {
					app.Log.Warnw("QUIC server certificate is not verified; set client.tls_ca_file", "addr", addr)
				}
				c.TLS = tlsConf
			}
			start := time.Now()
			resp := &wrapperspb.StringValue{}
			if err := c.Call(cmd.Context(), wrapperspb.String(text), resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s in %s\n", resp.GetValue(), time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "call timeout (overrides client.timeout)")
	return cmd
}

// clientTLS returns nil when no CA is configured.
func clientTLS(app *wire.App) (*tls.Config, error) {
	ca := strings.TrimSpace(app.Cfg.GetString("client.tls_ca_file"))
	if ca == "" {
		return nil, nil
	}
	return transport.ClientTLS(ca, app.Cfg.GetString("client.tls_server_name"))
}
