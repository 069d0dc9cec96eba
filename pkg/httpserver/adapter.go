package httpserver

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/netserver"
	"github.com/getmockd/imposterd/pkg/requestlog"
	"github.com/getmockd/imposterd/pkg/stub"
	"github.com/getmockd/imposterd/pkg/tls"
)

// Adapter creates http or https imposters under a fixed policy.
type Adapter struct {
	protocol imposter.Protocol
	policy   imposter.Policy
	log      *slog.Logger
}

// NewHTTP returns the plain http adapter.
func NewHTTP(policy imposter.Policy, log *slog.Logger) *Adapter {
	return newAdapter(imposter.ProtocolHTTP, policy, log)
}

// NewHTTPS returns the https adapter. policy.TLS is the certificate used by
// imposters that do not supply key and cert.
func NewHTTPS(policy imposter.Policy, log *slog.Logger) *Adapter {
	return newAdapter(imposter.ProtocolHTTPS, policy, log)
}

func newAdapter(p imposter.Protocol, policy imposter.Policy, log *slog.Logger) *Adapter {
	if log == nil {
		log = logging.Nop()
	}
	return &Adapter{protocol: p, policy: policy, log: log}
}

// Protocol returns http or https.
func (a *Adapter) Protocol() imposter.Protocol { return a.protocol }

// Config is the http-specific part of an imposter payload.
type Config struct {
	// Key and Cert are PEM strings; https only.
	Key  string `json:"key"`
	Cert string `json:"cert"`

	// DefaultResponse fills fields that a matched response leaves out and
	// answers requests no stub matches.
	DefaultResponse map[string]any `json:"defaultResponse"`
}

// Create validates cfg, binds its port and starts serving.
func (a *Adapter) Create(ctx context.Context, cfg *imposter.Config) (imposter.Server, error) {
	var hc Config
	if err := cfg.Decode(&hc); err != nil {
		return nil, err
	}

	resolver, err := stub.Parse(cfg, stub.Options{AllowInjection: a.policy.AllowInjection})
	if err != nil {
		return nil, err
	}

	var tlsConfig *cryptotls.Config
	if a.protocol == imposter.ProtocolHTTPS {
		tlsConfig, err = a.tlsConfig(hc)
		if err != nil {
			return nil, err
		}
	} else if hc.Key != "" || hc.Cert != "" {
		return nil, imposter.Configurationf("key and cert are only valid for https imposters")
	}

	ln, err := netserver.Listen(ctx, "", cfg.Port)
	if err != nil {
		return nil, err
	}
	port := netserver.PortOf(ln)
	if tlsConfig != nil {
		ln = cryptotls.NewListener(ln, tlsConfig)
	}

	var store requestlog.Store
	if a.policy.RecordRequests {
		store = requestlog.NewMemoryStore(0)
	}

	srv := newServer(serverConfig{
		port:            port,
		resolver:        resolver,
		store:           store,
		defaultResponse: hc.DefaultResponse,
		log:             logging.Scoped(a.log, string(a.protocol), port),
	})
	srv.start(ln)
	return srv, nil
}

func (a *Adapter) tlsConfig(hc Config) (*cryptotls.Config, error) {
	material := a.policy.TLS
	switch {
	case hc.Key != "" && hc.Cert != "":
		material = &imposter.TLSMaterial{CertPEM: []byte(hc.Cert), KeyPEM: []byte(hc.Key)}
	case hc.Key != "" || hc.Cert != "":
		return nil, imposter.Configurationf("key and cert must be supplied together")
	}
	if material == nil {
		return nil, imposter.Configurationf("no certificate available for https imposter")
	}
	tlsConfig, err := tls.ServerConfig(material)
	if err != nil {
		return nil, imposter.Configurationf("%v", err)
	}
	return tlsConfig, nil
}
