package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/imposterd/pkg/httputil"
	"github.com/getmockd/imposterd/pkg/requestlog"
	"github.com/getmockd/imposterd/pkg/stub"
)

// shutdownGrace is how long Stop lets in-flight requests finish before
// closing their connections.
const shutdownGrace = time.Second

type serverConfig struct {
	port            int
	resolver        *stub.Resolver
	store           requestlog.Store
	defaultResponse map[string]any
	log             *slog.Logger
}

// Server is one running http(s) imposter.
type Server struct {
	serverConfig

	httpServer *http.Server
	client     *http.Client
	done       chan struct{}

	// baseCtx parents every request context, so cancel aborts in-flight
	// proxy calls.
	baseCtx context.Context
	cancel  context.CancelFunc
}

func newServer(cfg serverConfig) *Server {
	s := &Server{
		serverConfig: cfg,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		done: make(chan struct{}),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Handler:           s,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	return s
}

func (s *Server) start(ln net.Listener) {
	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http imposter stopped unexpectedly", "error", err)
		}
	}()
}

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

// Requests returns the recorded requests. The interface is nil when
// recording is off.
func (s *Server) Requests() requestlog.Store {
	if s.store == nil {
		return nil
	}
	return s.store
}

// Stop closes the listener, cancels in-flight requests and waits at most
// shutdownGrace for them before closing their connections.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	graceCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(graceCtx); err != nil {
		_ = s.httpServer.Close()
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.client.CloseIdleConnections()
	return nil
}

// ServeHTTP answers one imposter request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "bad_data", "unable to read request body")
		return
	}

	request := simplify(r, body)
	if s.store != nil {
		s.store.Log(requestlog.NewEntry(request))
	}

	outcome, err := s.resolver.Resolve(request)
	if err != nil {
		s.log.Error("response resolution failed", "path", r.URL.Path, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "injection_failed", err.Error())
		return
	}

	if outcome.Proxy != nil {
		s.proxy(w, r, body, outcome.Proxy)
		return
	}

	fields := maps.Clone(s.defaultResponse)
	if fields == nil {
		fields = make(map[string]any)
	}
	maps.Copy(fields, outcome.Fields)
	write(w, stub.Outcome{Fields: fields})
}

// simplify reduces an http.Request to the fields predicates match on.
func simplify(r *http.Request, body []byte) map[string]any {
	query := make(map[string]any, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			query[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		query[key] = list
	}

	headers := make(map[string]any, len(r.Header))
	for key, values := range r.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return map[string]any{
		"requestFrom": r.RemoteAddr,
		"method":      r.Method,
		"path":        r.URL.Path,
		"query":       query,
		"headers":     headers,
		"body":        string(body),
	}
}

func write(w http.ResponseWriter, out stub.Outcome) {
	status := out.Int("statusCode", http.StatusOK)
	if status < 100 || status > 999 {
		status = http.StatusOK
	}

	for key, value := range out.Object("headers") {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				w.Header().Add(key, textValue(item))
			}
		default:
			w.Header().Set(key, textValue(v))
		}
	}

	body, hasBody := out.Text("body")
	if _, isString := out.Fields["body"].(string); hasBody && !isString && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if hasBody {
		_, _ = io.WriteString(w, body)
	}
}

func textValue(v any) string {
	out := stub.Outcome{Fields: map[string]any{"v": v}}
	s, _ := out.Text("v")
	return s
}

// proxy forwards the request to the downstream base URL and relays the
// response unchanged.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request, body []byte, p *stub.Proxy) {
	target := *p.To
	target.Path = strings.TrimSuffix(target.Path, "/") + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "invalid_proxy", err.Error())
		return
	}
	out.Header = r.Header.Clone()
	out.Host = target.Host

	resp, err := s.client.Do(out)
	if err != nil {
		s.log.Warn("proxy request failed", "to", p.To.String(), "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "invalid_proxy", err.Error())
		return
	}
	defer resp.Body.Close()

	maps.Copy(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
