// Package custom implements the custom imposter adapter, a newline-delimited
// text protocol over TCP. Each line is one request, {requestFrom, data}, and
// each answer is written back followed by a newline. Unmatched lines are
// answered with "foo".
package custom

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/netserver"
	"github.com/getmockd/imposterd/pkg/requestlog"
	"github.com/getmockd/imposterd/pkg/stub"
)

// DefaultResponse is sent when no stub answers a line.
const DefaultResponse = "foo"

const maxLineSize = 1024 * 1024

// Adapter creates custom-protocol imposters.
type Adapter struct {
	policy imposter.Policy
	log    *slog.Logger
}

// New returns the custom adapter.
func New(policy imposter.Policy, log *slog.Logger) *Adapter {
	if log == nil {
		log = logging.Nop()
	}
	return &Adapter{policy: policy, log: log}
}

// Protocol returns custom.
func (a *Adapter) Protocol() imposter.Protocol { return imposter.ProtocolCustom }

// Create validates cfg, binds its port and starts serving.
func (a *Adapter) Create(ctx context.Context, cfg *imposter.Config) (imposter.Server, error) {
	resolver, err := stub.Parse(cfg, stub.Options{AllowInjection: a.policy.AllowInjection})
	if err != nil {
		return nil, err
	}
	if len(resolver.ProxyTargets()) > 0 {
		return nil, imposter.Configurationf("custom imposters do not support proxy responses")
	}

	ln, err := netserver.Listen(ctx, "", cfg.Port)
	if err != nil {
		return nil, err
	}
	port := netserver.PortOf(ln)

	s := &Server{
		resolver: resolver,
		log:      logging.Scoped(a.log, string(imposter.ProtocolCustom), port),
	}
	if a.policy.RecordRequests {
		s.store = requestlog.NewMemoryStore(0)
	}
	s.Server = netserver.Serve(ln, s.handle, s.log)
	return s, nil
}

// Server is one running custom imposter.
type Server struct {
	*netserver.Server

	resolver *stub.Resolver
	store    requestlog.Store
	log      *slog.Logger
}

// Requests returns the recorded requests, or nil when recording is off.
func (s *Server) Requests() requestlog.Store { return s.store }

func (s *Server) handle(_ context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		request := map[string]any{
			"requestFrom": conn.RemoteAddr().String(),
			"data":        strings.TrimSuffix(scanner.Text(), "\r"),
		}
		if s.store != nil {
			s.store.Log(requestlog.NewEntry(request))
		}

		reply := DefaultResponse
		outcome, err := s.resolver.Resolve(request)
		if err != nil {
			s.log.Error("response resolution failed", "error", err)
			return
		}
		if data, ok := outcome.Text("data"); ok {
			reply = data
		}

		if _, err := w.WriteString(reply + "\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Debug("connection read failed", "error", err)
	}
}
