// Package imposter defines the domain types shared by the registry, the
// protocol adapters and the management API.
//
// An Imposter is a simulated network service bound to exactly one port and
// speaking exactly one Protocol. Its identity is its port. The live listener
// behind an imposter is a Server produced by a protocol adapter; the
// imposter wraps it together with the submitted Config and the policy flags
// the adapter was initialized with.
//
// # Errors
//
// Every failure the core can report is one of the sentinel errors in this
// package, usually wrapped with additional context:
//
//	ErrConfiguration        malformed or invalid configuration payload
//	ErrInjectionNotAllowed  injection used without --allowInjection
//	ErrUnsupportedProtocol  protocol name outside the known set
//	ErrConflict             port already registered
//	ErrNotFound             no imposter on the addressed port
//	ErrBind                 the listener could not be bound
//
// Callers classify them with errors.Is.
package imposter
