package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/getmockd/imposterd/pkg/engine"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/metrics"
)

// API exposes the management endpoints over a Manager.
type API struct {
	manager *engine.Manager
	metrics *metrics.Metrics
	log     *slog.Logger

	host        string
	port        int
	readTimeout time.Duration
	version     string
	settings    any
	logFile     string
	jsonLogs    bool
	corsConfig  *CORSConfig

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time
	done       chan struct{}
}

// NewAPI builds the API. The manager, and through it the registry, is
// shared with the caller.
func NewAPI(manager *engine.Manager, opts ...Option) *API {
	a := &API{
		manager:     manager,
		log:         logging.Nop(),
		port:        2525,
		readTimeout: 30 * time.Second,
		version:     "dev",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.handler = a.withMiddleware(mux)
	return a
}

// Handler returns the routed handler with middleware applied.
func (a *API) Handler() http.Handler { return a.handler }

// Start binds the management port and serves in the background.
func (a *API) Start(ctx context.Context) error {
	var lc net.ListenConfig
	addr := net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	a.listener = ln
	a.done = make(chan struct{})
	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadTimeout:       a.readTimeout,
		ReadHeaderTimeout: a.readTimeout,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelDebug),
	}

	go func() {
		defer close(a.done)
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin API error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (a *API) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Stop shuts the management server down.
func (a *API) Stop(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	err := a.httpServer.Shutdown(ctx)
	<-a.done
	return err
}

// Uptime returns the API uptime in seconds.
func (a *API) Uptime() int {
	return int(time.Since(a.startTime).Seconds())
}
