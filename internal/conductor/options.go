package conductor

import (
	"time"

	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
)

type options struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics
	timeout time.Duration
}

// Option configures conductor clients
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records every request in metrics
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithRequestTimeout bounds each request; zero leaves it to the context
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	return o
}
