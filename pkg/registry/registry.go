// Package registry holds the port-keyed store of running imposters.
//
// The Registry is the single source of truth for what is currently running.
// All mutations are serialized by one write lock that is only ever held for
// map bookkeeping; binding a listener and tearing one down both happen
// outside it. Two mechanisms make that safe:
//
//   - Reserve / Commit / Rollback let a creation claim a port before the
//     listener exists, so two creations on one port cannot both bind.
//   - Remove marks an entry as stopping, tears the imposter down with the
//     lock released, then deletes the entry. A stopping entry still blocks
//     the port but is no longer visible to Get or List.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
)

// entry is one occupied port.
type entry struct {
	state    imposter.State
	imposter *imposter.Imposter

	// stopping is non-nil while teardown is in progress and is closed once
	// the entry has been deleted.
	stopping chan struct{}
}

// visible reports whether Get and List may return the entry.
func (e *entry) visible() bool {
	return e.state == imposter.StateRunning && e.stopping == nil
}

// Registry maps ports to running imposters.
// It is thread-safe and can be used concurrently.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*entry
	log     *slog.Logger
}

// New creates an empty Registry.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		entries: make(map[int]*entry),
		log:     log,
	}
}

// Add registers a running imposter under its port.
// Returns ErrConflict if the port is already occupied, including by a
// reservation or an imposter that is still being torn down.
func (r *Registry) Add(imp *imposter.Imposter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	port := imp.Port()
	if _, exists := r.entries[port]; exists {
		return fmt.Errorf("%w: %d", imposter.ErrConflict, port)
	}
	r.entries[port] = &entry{state: imposter.StateRunning, imposter: imp}
	return nil
}

// Reserve claims port for an imposter that is about to be created.
// The reservation is invisible to Get and List until Commit.
func (r *Registry) Reserve(port int) error {
	if port <= 0 {
		return imposter.Configurationf("cannot reserve port %d", port)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[port]; exists {
		return fmt.Errorf("%w: %d", imposter.ErrConflict, port)
	}
	r.entries[port] = &entry{state: imposter.StateStarting}
	return nil
}

// Commit fills a reservation with the created imposter.
func (r *Registry) Commit(imp *imposter.Imposter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	port := imp.Port()
	e, exists := r.entries[port]
	if !exists || e.state != imposter.StateStarting {
		return fmt.Errorf("commit port %d: no reservation held", port)
	}
	e.state = imposter.StateRunning
	e.imposter = imp
	return nil
}

// Rollback releases a reservation that will not be committed.
// Committed entries are left alone.
func (r *Registry) Rollback(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[port]; exists && e.state == imposter.StateStarting {
		delete(r.entries, port)
	}
}

// Get returns the running imposter on port, or ErrNotFound.
func (r *Registry) Get(port int) (*imposter.Imposter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[port]
	if !exists || !e.visible() {
		return nil, fmt.Errorf("%w: port %d", imposter.ErrNotFound, port)
	}
	return e.imposter, nil
}

// List returns every running imposter sorted by port.
func (r *Registry) List() []*imposter.Imposter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*imposter.Imposter, 0, len(r.entries))
	for _, e := range r.entries {
		if e.visible() {
			out = append(out, e.imposter)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port() < out[j].Port() })
	return out
}

// Count returns the number of running imposters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.visible() {
			n++
		}
	}
	return n
}

// Remove tears down and unregisters the imposter on port.
// Removing an absent port (or a reservation) is a no-op. When another
// Remove is already tearing the port down, Remove waits for it to finish.
// The removed imposter is returned, or nil when nothing was removed.
func (r *Registry) Remove(ctx context.Context, port int) (*imposter.Imposter, error) {
	r.mu.Lock()
	e, exists := r.entries[port]
	if !exists || e.state != imposter.StateRunning {
		r.mu.Unlock()
		return nil, nil
	}
	if e.stopping != nil {
		wait := e.stopping
		r.mu.Unlock()
		select {
		case <-wait:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.stopping = make(chan struct{})
	r.mu.Unlock()

	err := e.imposter.Stop(ctx)
	r.finish(port, e)
	return e.imposter, err
}

// RemoveAll tears down every running imposter concurrently and clears the
// registry. Teardown failures are logged; the entries are removed anyway.
// The removed imposters are returned sorted by port.
func (r *Registry) RemoveAll(ctx context.Context) []*imposter.Imposter {
	r.mu.Lock()
	var claimed []*entry
	for _, e := range r.entries {
		if e.state == imposter.StateRunning && e.stopping == nil {
			e.stopping = make(chan struct{})
			claimed = append(claimed, e)
		}
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, e := range claimed {
		g.Go(func() error {
			imp := e.imposter
			if err := imp.Stop(ctx); err != nil {
				r.log.Error("imposter teardown failed", "port", imp.Port(), "protocol", imp.Protocol(), "error", err)
			}
			r.finish(imp.Port(), e)
			return nil
		})
	}
	_ = g.Wait()

	removed := make([]*imposter.Imposter, 0, len(claimed))
	for _, e := range claimed {
		removed = append(removed, e.imposter)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Port() < removed[j].Port() })
	return removed
}

// finish deletes a torn-down entry and releases anyone waiting on it.
func (r *Registry) finish(port int, e *entry) {
	r.mu.Lock()
	e.state = imposter.StateStopped
	if r.entries[port] == e {
		delete(r.entries, port)
	}
	r.mu.Unlock()
	close(e.stopping)
}
