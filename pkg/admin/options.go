package admin

import (
	"log/slog"
	"time"

	"github.com/getmockd/imposterd/pkg/metrics"
)

// Option configures an API.
type Option func(*API)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithMetrics serves /metrics and records request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// WithAddress sets the management listen address.
func WithAddress(host string, port int) Option {
	return func(a *API) {
		a.host = host
		a.port = port
	}
}

// WithReadTimeout bounds how long a management request may take to arrive.
func WithReadTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.readTimeout = d
		}
	}
}

// WithVersion sets the version reported by /config.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithSettings sets the effective options reported by /config.
func WithSettings(settings any) Option {
	return func(a *API) { a.settings = settings }
}

// WithLogFile exposes the server log through /logs. jsonLines selects
// whether each line is decoded as a JSON record.
func WithLogFile(path string, jsonLines bool) Option {
	return func(a *API) {
		a.logFile = path
		a.jsonLogs = jsonLines
	}
}

// WithCORS enables cross-origin requests to the management API.
func WithCORS(config CORSConfig) Option {
	return func(a *API) { a.corsConfig = &config }
}
