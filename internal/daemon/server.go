package daemon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mithrel/oneshot/internal/metrics"
	"github.com/mithrel/oneshot/internal/ping"
	"github.com/mithrel/oneshot/internal/server"
	"github.com/mithrel/oneshot/internal/transport"
	"github.com/mithrel/oneshot/internal/wire"
	"github.com/mithrel/oneshot/pkg/oneshot"
)

// Run serves the ping protocol on the configured listener, plus the metrics
// endpoint, until ctx is done.
func Run(ctx context.Context, app *wire.App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	acc, err := listen(ctx, app)
	if err != nil {
		return err
	}
	app.Log.Infow("listening", "network", app.Cfg.GetString("listen.network"), "addr", acc.Addr().String())

	if addr := strings.TrimSpace(app.Cfg.GetString("metrics.addr")); addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler(app.Registry)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Log.Errorw("metrics server failed", "addr", addr, "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts := []server.Option{
		server.WithLogger(app.Log),
		server.WithMetrics(app.Metrics),
		server.WithMaxInFlight(app.Cfg.GetInt("server.max_in_flight")),
	}
	if r := app.Cfg.GetFloat64("server.accept_rate"); r > 0 {
		opts = append(opts, server.WithAcceptLimiter(rate.NewLimiter(rate.Limit(r), app.Cfg.GetInt("server.accept_burst"))))
	}
	proto := oneshot.Pipelined[io.ReadWriteCloser, ping.Request, ping.Response](ping.Proto{})
	srv := server.New[io.ReadWriteCloser, ping.Request, ping.Response](proto, ping.Service{}, opts...)
	return srv.Serve(ctx, acc)
}

func listen(ctx context.Context, app *wire.App) (transport.Acceptor[io.ReadWriteCloser], error) {
	network := app.Cfg.GetString("listen.network")
	addr := strings.TrimSpace(app.Cfg.GetString("listen.addr"))
	switch network {
	case "unix", "tcp":
		if addr == "" {
			p, err := transport.SocketPath()
			if err != nil {
				return nil, err
			}
			addr = p
		}
		acc, err := transport.Listen(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return transport.Erase[net.Conn](acc), nil
	case "quic":
		tlsConf, err := serverTLS(ctx, app)
		if err != nil {
			return nil, err
		}
		acc, err := transport.ListenQUIC(addr, tlsConf)
		if err != nil {
			return nil, err
		}
		return transport.Erase[*transport.QUICStream](acc), nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}

func serverTLS(ctx context.Context, app *wire.App) (*tls.Config, error) {
	switch mode := app.Cfg.GetString("tls.mode"); mode {
	case "self-signed":
		app.Log.Warn("using a self-signed certificate; clients must skip verification")
		return transport.SelfSignedTLS()
	case "file":
		return transport.FileTLS(app.Cfg.GetString("tls.cert_file"), app.Cfg.GetString("tls.key_file"))
	case "acme":
		return transport.CertMagicTLS(ctx, transport.CertMagicConfig{
			Domain:     app.Cfg.GetString("tls.domain"),
			Email:      app.Cfg.GetString("tls.email"),
			StorageDir: app.Cfg.GetString("tls.storage_dir"),
		})
	default:
		return nil, fmt.Errorf("unsupported tls.mode %q", mode)
	}
}
