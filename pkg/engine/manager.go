package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/metrics"
	"github.com/getmockd/imposterd/pkg/registry"
)

// Creator starts imposters. *protocol.AdapterSet implements it.
type Creator interface {
	Create(ctx context.Context, protocol string, cfg *imposter.Config) (*imposter.Imposter, error)
}

// Manager mediates collection operations between the management API, the
// protocol adapters and the registry.
type Manager struct {
	adapters Creator
	registry *registry.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics records lifecycle metrics.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// NewManager creates a manager over a shared registry.
func NewManager(adapters Creator, reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		adapters: adapters,
		registry: reg,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registry the manager mutates.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// List returns every running imposter in ascending port order.
func (m *Manager) List() []*imposter.Imposter {
	return m.registry.List()
}

// Get returns the running imposter on port.
func (m *Manager) Get(port int) (*imposter.Imposter, error) {
	return m.registry.Get(port)
}

// Create starts and registers one imposter.
//
// With an explicit port the slot is reserved first, so concurrent creations
// on the same port fail fast with ErrConflict and the listener is bound
// outside the registry lock. Without a port the adapter binds an ephemeral
// one and the result is added afterwards.
func (m *Manager) Create(ctx context.Context, cfg *imposter.Config) (*imposter.Imposter, error) {
	imp, err := m.create(ctx, cfg)
	m.metrics.Operation("create", err)
	if err != nil {
		m.log.Warn("imposter creation failed", "protocol", cfg.Protocol, "port", cfg.Port, "error", err)
		return nil, err
	}

	m.metrics.ImposterStarted(string(imp.Protocol()))
	logging.Scoped(m.log, string(imp.Protocol()), imp.Port()).Info("imposter created", "name", imp.Name())
	return imp, nil
}

func (m *Manager) create(ctx context.Context, cfg *imposter.Config) (*imposter.Imposter, error) {
	if _, err := imposter.ParseProtocol(cfg.Protocol); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		imp, err := m.adapters.Create(ctx, cfg.Protocol, cfg)
		if err != nil {
			return nil, err
		}
		if err := m.registry.Add(imp); err != nil {
			m.discard(imp)
			return nil, err
		}
		return imp, nil
	}

	if err := m.registry.Reserve(cfg.Port); err != nil {
		return nil, err
	}
	imp, err := m.adapters.Create(ctx, cfg.Protocol, cfg)
	if err != nil {
		m.registry.Rollback(cfg.Port)
		return nil, err
	}
	if err := m.registry.Commit(imp); err != nil {
		m.registry.Rollback(cfg.Port)
		m.discard(imp)
		return nil, err
	}
	return imp, nil
}

// discard stops an imposter that never made it into the registry.
func (m *Manager) discard(imp *imposter.Imposter) {
	if err := imp.Stop(context.Background()); err != nil {
		m.log.Error("failed to stop unregistered imposter", "port", imp.Port(), "error", err)
	}
}

// DeleteOne removes the imposter on port. Deleting an absent port succeeds
// and returns nil. Teardown failures are logged, not returned; the imposter
// is unregistered either way.
func (m *Manager) DeleteOne(ctx context.Context, port int) (*imposter.Imposter, error) {
	imp, err := m.registry.Remove(ctx, port)
	if imp == nil {
		return nil, err
	}
	log := logging.Scoped(m.log, string(imp.Protocol()), port)
	if err != nil {
		log.Error("imposter teardown failed", "error", err)
	}
	m.metrics.Operation("delete", err)
	m.metrics.ImposterStopped(string(imp.Protocol()))
	log.Info("imposter deleted")
	return imp, nil
}

// DeleteAll removes every imposter and returns what was removed.
func (m *Manager) DeleteAll(ctx context.Context) []*imposter.Imposter {
	removed := m.registry.RemoveAll(ctx)
	for _, imp := range removed {
		m.metrics.Operation("delete", nil)
		m.metrics.ImposterStopped(string(imp.Protocol()))
	}
	if len(removed) > 0 {
		m.log.Info("imposters deleted", "count", len(removed))
	}
	return removed
}

// ReplaceError reports the first configuration ReplaceAll could not create.
type ReplaceError struct {
	Index int
	Err   error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("imposter %d: %v", e.Index, e.Err)
}

func (e *ReplaceError) Unwrap() error { return e.Err }

// ReplaceAll deletes every imposter, then creates cfgs in order. It stops at
// the first failure and returns a *ReplaceError; imposters created before
// the failure stay running.
func (m *Manager) ReplaceAll(ctx context.Context, cfgs []*imposter.Config) ([]*imposter.Imposter, error) {
	m.DeleteAll(ctx)

	created := make([]*imposter.Imposter, 0, len(cfgs))
	for i, cfg := range cfgs {
		imp, err := m.Create(ctx, cfg)
		if err != nil {
			return created, &ReplaceError{Index: i, Err: err}
		}
		created = append(created, imp)
	}
	return created, nil
}

// FailedIndex extracts the failing position from a ReplaceAll error.
func FailedIndex(err error) (int, bool) {
	var re *ReplaceError
	if errors.As(err, &re) {
		return re.Index, true
	}
	return 0, false
}
