// Package smtp implements the smtp imposter adapter: a receiving mail server
// that accepts every message and records it as
// {requestFrom, envelopeFrom, envelopeTo, from, to, cc, subject, text}.
// smtp imposters do not take stubs.
package smtp

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/logging"
	"github.com/getmockd/imposterd/pkg/netserver"
	"github.com/getmockd/imposterd/pkg/requestlog"
	"github.com/getmockd/imposterd/pkg/stub"
)

const maxMessageBytes = 10 * 1024 * 1024

// Adapter creates smtp imposters.
type Adapter struct {
	policy imposter.Policy
	log    *slog.Logger
}

// New returns the smtp adapter.
func New(policy imposter.Policy, log *slog.Logger) *Adapter {
	if log == nil {
		log = logging.Nop()
	}
	return &Adapter{policy: policy, log: log}
}

// Protocol returns smtp.
func (a *Adapter) Protocol() imposter.Protocol { return imposter.ProtocolSMTP }

// Create binds the port and starts accepting mail.
func (a *Adapter) Create(ctx context.Context, cfg *imposter.Config) (imposter.Server, error) {
	if stub.HasStubs(cfg) {
		return nil, imposter.Configurationf("smtp imposters do not support stubs")
	}

	ln, err := netserver.Listen(ctx, "", cfg.Port)
	if err != nil {
		return nil, err
	}
	port := netserver.PortOf(ln)

	s := &Server{
		port: port,
		log:  logging.Scoped(a.log, string(imposter.ProtocolSMTP), port),
		done: make(chan struct{}),
	}
	if a.policy.RecordRequests {
		s.store = requestlog.NewMemoryStore(0)
	}

	s.smtp = smtp.NewServer(s)
	s.smtp.Domain = "localhost"
	s.smtp.ReadTimeout = time.Minute
	s.smtp.WriteTimeout = time.Minute
	s.smtp.MaxMessageBytes = maxMessageBytes

	go func() {
		defer close(s.done)
		if err := s.smtp.Serve(ln); err != nil && !s.closing.Load() {
			s.log.Error("smtp imposter stopped unexpectedly", "error", err)
		}
	}()
	return s, nil
}

// Server is one running smtp imposter. It is also the go-smtp backend.
type Server struct {
	port    int
	smtp    *smtp.Server
	store   requestlog.Store
	log     *slog.Logger
	closing atomic.Bool
	done    chan struct{}
}

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

// Requests returns the recorded messages, or nil when recording is off.
func (s *Server) Requests() requestlog.Store { return s.store }

// Stop closes the listener and every session.
func (s *Server) Stop(ctx context.Context) error {
	s.closing.Store(true)
	err := s.smtp.Close()
	select {
	case <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewSession starts a mail transaction for one client connection.
func (s *Server) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{server: s, remote: c.Conn().RemoteAddr()}, nil
}

type session struct {
	server *Server
	remote net.Addr
	from   string
	to     []string
}

func (ss *session) Mail(from string, _ *smtp.MailOptions) error {
	ss.from = from
	return nil
}

func (ss *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	ss.to = append(ss.to, to)
	return nil
}

func (ss *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	request := parseMessage(raw)
	request["requestFrom"] = ss.remote.String()
	request["envelopeFrom"] = ss.from
	request["envelopeTo"] = toAnySlice(ss.to)

	if ss.server.store != nil {
		ss.server.store.Log(requestlog.NewEntry(request))
	}
	ss.server.log.Debug("message received", "from", ss.from, "recipients", len(ss.to))
	return nil
}

func (ss *session) Reset() {
	ss.from = ""
	ss.to = nil
}

func (ss *session) Logout() error { return nil }

// parseMessage extracts the headers predicates care about and the body text.
// Unparseable messages keep their raw content as text.
func parseMessage(raw []byte) map[string]any {
	out := map[string]any{
		"from":    "",
		"to":      []any{},
		"cc":      []any{},
		"subject": "",
		"text":    "",
	}

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		out["text"] = string(raw)
		return out
	}

	out["from"] = msg.Header.Get("From")
	out["subject"] = decodeHeader(msg.Header.Get("Subject"))
	out["to"] = addressList(msg.Header, "To")
	out["cc"] = addressList(msg.Header, "Cc")

	body, err := io.ReadAll(msg.Body)
	if err == nil {
		out["text"] = strings.TrimRight(string(body), "\r\n")
	}
	return out
}

func addressList(h mail.Header, key string) []any {
	list, err := h.AddressList(key)
	if err != nil {
		if v := h.Get(key); v != "" {
			return []any{v}
		}
		return []any{}
	}
	out := make([]any, len(list))
	for i, addr := range list {
		out[i] = addr.Address
	}
	return out
}

func decodeHeader(v string) string {
	var dec mime.WordDecoder
	if s, err := dec.DecodeHeader(v); err == nil {
		return s
	}
	return v
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
