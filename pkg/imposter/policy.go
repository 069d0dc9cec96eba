package imposter

import "time"

// Policy is the process-wide configuration every protocol adapter receives
// once at startup. It is immutable afterwards.
type Policy struct {
	// AllowInjection permits inject predicates and responses.
	AllowInjection bool

	// RecordRequests enables capture of received requests for inspection.
	RecordRequests bool

	// ProxyWait is how long a TCP proxy waits for more upstream data
	// before considering a response complete.
	ProxyWait time.Duration

	// TLS is the default certificate for https imposters. Optional.
	TLS *TLSMaterial
}

// TLSMaterial holds a PEM-encoded certificate and private key.
type TLSMaterial struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Flags returns the per-imposter view of the policy.
func (p Policy) Flags() Flags {
	return Flags{
		AllowInjection: p.AllowInjection,
		RecordRequests: p.RecordRequests,
	}
}

// Flags are the policy switches an imposter inherits from its adapter.
// They are not configurable per imposter.
type Flags struct {
	AllowInjection bool `json:"allowInjection"`
	RecordRequests bool `json:"recordRequests"`
}
