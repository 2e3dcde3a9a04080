package server

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mithrel/oneshot/internal/metrics"
)

const defaultMaxInFlight = 16

type options struct {
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics
	maxInFlight int
	limiter     *rate.Limiter
}

type Option func(o *options)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMaxInFlight bounds how many requests of one connection may be handed
// to the service before their responses are written. Values below 1 keep
// the default.
func WithMaxInFlight(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

// WithAcceptLimiter throttles how fast Serve accepts new connections.
func WithAcceptLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}
