package protocol

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getmockd/imposterd/pkg/custom"
	"github.com/getmockd/imposterd/pkg/httpserver"
	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/smtp"
	"github.com/getmockd/imposterd/pkg/tcp"
	"github.com/getmockd/imposterd/pkg/tls"
)

// Adapter creates imposters for one protocol.
type Adapter interface {
	// Protocol returns the protocol this adapter serves.
	Protocol() imposter.Protocol

	// Create validates cfg, binds its port and starts the listener.
	Create(ctx context.Context, cfg *imposter.Config) (imposter.Server, error)
}

// AdapterSet holds one adapter per protocol, all sharing one policy.
type AdapterSet struct {
	policy   imposter.Policy
	adapters map[imposter.Protocol]Adapter
	log      *slog.Logger
}

// Initialize builds the adapter set. When the policy carries no TLS
// material a self-signed certificate is generated for https imposters.
func Initialize(policy imposter.Policy, log *slog.Logger) (*AdapterSet, error) {
	if log == nil {
		log = logging.Nop()
	}
	if policy.TLS == nil {
		material, err := tls.GenerateSelfSigned(nil)
		if err != nil {
			return nil, fmt.Errorf("default https certificate: %w", err)
		}
		policy.TLS = material
	}

	return NewAdapterSet(policy, log,
		tcp.New(policy, log),
		httpserver.NewHTTP(policy, log),
		httpserver.NewHTTPS(policy, log),
		smtp.New(policy, log),
		custom.New(policy, log),
	), nil
}

// NewAdapterSet assembles a set from explicit adapters. A later adapter for
// the same protocol replaces an earlier one.
func NewAdapterSet(policy imposter.Policy, log *slog.Logger, adapters ...Adapter) *AdapterSet {
	if log == nil {
		log = logging.Nop()
	}
	s := &AdapterSet{
		policy:   policy,
		adapters: make(map[imposter.Protocol]Adapter, len(adapters)),
		log:      log,
	}
	for _, a := range adapters {
		s.adapters[a.Protocol()] = a
	}
	return s
}

// Policy returns the policy every adapter was built with.
func (s *AdapterSet) Policy() imposter.Policy { return s.policy }

// Lookup resolves a protocol name to its adapter.
func (s *AdapterSet) Lookup(name string) (Adapter, error) {
	p, err := imposter.ParseProtocol(name)
	if err != nil {
		return nil, err
	}
	a, ok := s.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", imposter.ErrUnsupportedProtocol, name)
	}
	return a, nil
}

// Create starts an imposter for the named protocol. The returned imposter
// is live but not yet registered.
func (s *AdapterSet) Create(ctx context.Context, name string, cfg *imposter.Config) (*imposter.Imposter, error) {
	a, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}

	server, err := a.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return imposter.New(a.Protocol(), cfg, s.policy.Flags(), server), nil
}
