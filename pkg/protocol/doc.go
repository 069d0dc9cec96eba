// Package protocol binds the protocol adapters to the process-wide policy.
//
// Initialize builds one Adapter per supported protocol from a single
// imposter.Policy. The resulting AdapterSet is immutable and safe for
// concurrent use; it resolves a protocol name to its adapter and turns a
// configuration into a running imposter.Imposter. Adapters never see the
// registry, so creating an imposter and recording it are separate steps.
//
// # Interface
//
//	type Adapter interface {
//	    Protocol() imposter.Protocol
//	    Create(ctx context.Context, cfg *imposter.Config) (imposter.Server, error)
//	}
//
// Create validates the protocol-specific fields (imposter.ErrConfiguration),
// binds the requested port or an ephemeral one (imposter.ErrBind) and starts
// the listener before returning.
package protocol
