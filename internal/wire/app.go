package wire

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mithrel/oneshot/internal/config"
	"github.com/mithrel/oneshot/internal/llog"
	"github.com/mithrel/oneshot/internal/metrics"
)

// App aggregates the major services for easy injection.
type App struct {
	Cfg      *viper.Viper
	Log      *zap.SugaredLogger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	flush func()
}

// BuildApp validates cfg and wires logging and metrics from it.
func BuildApp(ctx context.Context, cfg *viper.Viper) (*App, error) {
	if err := config.CheckConfigValidity(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, flush, err := llog.InitLogger(
		llog.WithLevel(cfg.GetString("log.level")),
		llog.WithEncoding(cfg.GetString("log.encoding")),
		llog.WithFilename(cfg.GetString("log.file")),
		llog.WithServiceName("oneshot"),
	)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{
		Cfg:      cfg,
		Log:      logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
		flush:    flush,
	}, nil
}

// Close flushes buffered log entries.
func (a *App) Close() {
	if a.flush != nil {
		a.flush()
	}
}
