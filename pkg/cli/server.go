package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/getmockd/imposterd/pkg/admin"
	"github.com/getmockd/imposterd/pkg/config"
	"github.com/getmockd/imposterd/pkg/engine"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/metrics"
	"github.com/getmockd/imposterd/pkg/protocol"
	"github.com/getmockd/imposterd/pkg/registry"
)

// Server is one imposterd process: the imposter manager and the management
// API in front of it.
type Server struct {
	opts    config.Options
	log     *slog.Logger
	logs    io.Closer
	manager *engine.Manager
	api     *admin.API
}

// NewServer wires the process from validated options. Nothing is bound
// until Start.
func NewServer(opts config.Options, version string) (*Server, error) {
	log, logs, err := logging.Open(opts.Logging())
	if err != nil {
		return nil, err
	}

	policy, err := opts.Policy()
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("failed to load TLS material: %w", err)
	}

	adapters, err := protocol.Initialize(policy, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	mx := metrics.New()
	manager := engine.NewManager(adapters, registry.New(log.With("component", "registry")),
		engine.WithLogger(log),
		engine.WithMetrics(mx),
	)

	apiOpts := []admin.Option{
		admin.WithLogger(log.With("component", "admin")),
		admin.WithMetrics(mx),
		admin.WithAddress(opts.Host, opts.Port),
		admin.WithReadTimeout(opts.AdminReadTimeout),
		admin.WithVersion(version),
		admin.WithSettings(opts),
		admin.WithLogFile(opts.LogFile, opts.JSONLogs()),
	}
	if opts.AllowCORS {
		apiOpts = append(apiOpts, admin.WithCORS(admin.DefaultCORSConfig()))
	}

	return &Server{
		opts:    opts,
		log:     log,
		logs:    logs,
		manager: manager,
		api:     admin.NewAPI(manager, apiOpts...),
	}, nil
}

// Start binds the management port and loads the imposter file, if any.
// A file that fails to load leaves the server running with the imposters
// created before the failing entry and returns the error.
func (s *Server) Start(ctx context.Context) error {
	if err := s.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start admin API: %w", err)
	}
	s.log.Info("imposterd now taking orders",
		"addr", s.api.Addr().String(),
		"allowInjection", s.opts.AllowInjection,
		"recordRequests", !s.opts.NoMock,
	)

	if s.opts.ConfigFile == "" {
		return nil
	}
	cfgs, err := config.LoadImposters(s.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load imposters: %w", err)
	}
	created, err := s.manager.ReplaceAll(ctx, cfgs)
	if err != nil {
		return fmt.Errorf("failed to load imposters from %s: %w", s.opts.ConfigFile, err)
	}
	s.log.Info("imposters loaded", "file", s.opts.ConfigFile, "count", len(created))
	return nil
}

// Addr returns the management API address once started.
func (s *Server) Addr() net.Addr { return s.api.Addr() }

// Manager returns the imposter manager.
func (s *Server) Manager() *engine.Manager { return s.manager }

// Shutdown stops every imposter, then the management API, and closes the
// log file.
func (s *Server) Shutdown(ctx context.Context) error {
	removed := s.manager.DeleteAll(ctx)
	err := s.api.Stop(ctx)
	s.log.Info("adios, see you soon", "impostersStopped", len(removed))
	return errors.Join(err, s.logs.Close())
}
