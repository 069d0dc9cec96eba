// Package tcp implements the tcp imposter adapter.
//
// Every read from a client connection is one request, {requestFrom, data}.
// In text mode data is the raw text; in binary mode it is base64 and so are
// the data fields of responses. Proxy responses relay the bytes to a
// downstream tcp://host:port and collect the reply until it goes quiet for
// the policy's proxy wait.
package tcp

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/netserver"
	"github.com/getmockd/imposterd/pkg/requestlog"
	"github.com/getmockd/imposterd/pkg/stub"
)

// Mode selects how payload bytes are represented.
type Mode string

// Modes.
const (
	ModeText   Mode = "text"
	ModeBinary Mode = "binary"
)

const readBufferSize = 64 * 1024

// Adapter creates tcp imposters.
type Adapter struct {
	policy imposter.Policy
	log    *slog.Logger
}

// New returns the tcp adapter.
func New(policy imposter.Policy, log *slog.Logger) *Adapter {
	if log == nil {
		log = logging.Nop()
	}
	return &Adapter{policy: policy, log: log}
}

// Protocol returns tcp.
func (a *Adapter) Protocol() imposter.Protocol { return imposter.ProtocolTCP }

// Config is the tcp-specific part of an imposter payload.
type Config struct {
	Mode Mode `json:"mode"`
}

// Create validates cfg, binds its port and starts serving.
func (a *Adapter) Create(ctx context.Context, cfg *imposter.Config) (imposter.Server, error) {
	var tc Config
	if err := cfg.Decode(&tc); err != nil {
		return nil, err
	}
	switch tc.Mode {
	case "":
		tc.Mode = ModeText
	case ModeText, ModeBinary:
	default:
		return nil, imposter.Configurationf("mode must be text or binary, got %q", tc.Mode)
	}

	resolver, err := stub.Parse(cfg, stub.Options{AllowInjection: a.policy.AllowInjection})
	if err != nil {
		return nil, err
	}
	for _, to := range resolver.ProxyTargets() {
		if to.Scheme != "tcp" {
			return nil, imposter.Configurationf("tcp proxy target must use tcp://, got %s", to)
		}
	}

	ln, err := netserver.Listen(ctx, "", cfg.Port)
	if err != nil {
		return nil, err
	}
	port := netserver.PortOf(ln)

	s := &Server{
		mode:      tc.Mode,
		resolver:  resolver,
		proxyWait: a.policy.ProxyWait,
		log:       logging.Scoped(a.log, string(imposter.ProtocolTCP), port),
	}
	if a.policy.RecordRequests {
		s.store = requestlog.NewMemoryStore(0)
	}
	s.Server = netserver.Serve(ln, s.handle, s.log)
	return s, nil
}

// Server is one running tcp imposter.
type Server struct {
	*netserver.Server

	mode      Mode
	resolver  *stub.Resolver
	store     requestlog.Store
	proxyWait time.Duration
	log       *slog.Logger
}

// Requests returns the recorded requests, or nil when recording is off.
func (s *Server) Requests() requestlog.Store { return s.store }

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if !s.respond(ctx, conn, buf[:n]) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("connection read failed", "error", err)
			}
			return
		}
	}
}

// respond answers one request. It returns false when the connection should
// be dropped.
func (s *Server) respond(ctx context.Context, conn net.Conn, payload []byte) bool {
	request := map[string]any{
		"requestFrom": conn.RemoteAddr().String(),
		"data":        s.encode(payload),
	}
	if s.store != nil {
		s.store.Log(requestlog.NewEntry(request))
	}

	outcome, err := s.resolver.Resolve(request)
	if err != nil {
		s.log.Error("response resolution failed", "error", err)
		return false
	}

	var reply []byte
	if outcome.Proxy != nil {
		reply, err = s.proxy(ctx, outcome.Proxy.To.Host, payload)
		if err != nil {
			s.log.Warn("proxy request failed", "to", outcome.Proxy.To.String(), "error", err)
			return false
		}
	} else if data, ok := outcome.Text("data"); ok {
		reply, err = s.decode(data)
		if err != nil {
			s.log.Error("invalid binary response data", "error", err)
			return false
		}
	}

	if len(reply) == 0 {
		return true
	}
	if _, err := conn.Write(reply); err != nil {
		s.log.Debug("connection write failed", "error", err)
		return false
	}
	return true
}

func (s *Server) encode(b []byte) string {
	if s.mode == ModeBinary {
		return base64.StdEncoding.EncodeToString(b)
	}
	return string(b)
}

func (s *Server) decode(data string) ([]byte, error) {
	if s.mode == ModeBinary {
		return base64.StdEncoding.DecodeString(data)
	}
	return []byte(data), nil
}

// proxy sends payload to addr and returns everything received until the
// downstream connection is quiet for proxyWait or closes.
func (s *Server) proxy(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	// Stop cancels ctx; closing the downstream connection ends the read loop.
	release := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer release()

	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}

	wait := s.proxyWait
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}

	var reply []byte
	buf := make([]byte, readBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return reply, err
		}
		n, err := conn.Read(buf)
		reply = append(reply, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				return reply, nil
			}
			return reply, err
		}
	}
}
