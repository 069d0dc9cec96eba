package httpserver

import (
	"context"
	cryptotls "crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/imposterd/pkg/imposter"
	"github.com/getmockd/imposterd/pkg/tls"
)

func create(t *testing.T, a *Adapter, payload string) *Server {
	t.Helper()
	cfg, err := imposter.ParseConfig([]byte(payload))
	require.NoError(t, err)
	srv, err := a.Create(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv.(*Server)
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHTTP_DefaultResponse(t *testing.T) {
	srv := create(t, NewHTTP(imposter.Policy{RecordRequests: true}, nil), `{"protocol":"http"}`)
	require.Positive(t, srv.Port())

	resp, body := get(t, http.DefaultClient, fmt.Sprintf("http://127.0.0.1:%d/anything?x=1", srv.Port()))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	require.NotNil(t, srv.Requests())
	entries := srv.Requests().List()
	require.Len(t, entries, 1)
	assert.Equal(t, "/anything", entries[0].Request["path"])
	assert.Equal(t, "1", entries[0].Request["query"].(map[string]any)["x"])
}

func TestHTTP_NoRecording(t *testing.T) {
	srv := create(t, NewHTTP(imposter.Policy{}, nil), `{"protocol":"http"}`)
	assert.Nil(t, srv.Requests())
}

func TestHTTP_StubsAndDefaultResponse(t *testing.T) {
	srv := create(t, NewHTTP(imposter.Policy{}, nil), `{
		"protocol": "http",
		"defaultResponse": {"statusCode": 404, "headers": {"X-Default": "yes"}},
		"stubs": [{
			"predicates": [{"equals": {"method": "GET", "path": "/users"}}],
			"responses": [
				{"is": {"statusCode": 200, "body": {"users": []}}},
				{"is": {"body": "second"}}
			]
		}]
	}`)
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Port())

	resp, body := get(t, http.DefaultClient, base+"/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"users":[]}`, body)
	assert.Equal(t, "yes", resp.Header.Get("X-Default"))

	resp, body = get(t, http.DefaultClient, base+"/users")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "default status fills the gap")
	assert.Equal(t, "second", body)

	resp, _ = get(t, http.DefaultClient, base+"/other")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_Proxy(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "downstream")
		w.WriteHeader(http.StatusTeapot)
		_, _ = fmt.Fprintf(w, "%s %s?%s", r.Method, r.URL.Path, r.URL.RawQuery)
	}))
	defer downstream.Close()

	srv := create(t, NewHTTP(imposter.Policy{}, nil), `{
		"protocol": "http",
		"stubs": [{"responses": [{"proxy": {"to": "`+downstream.URL+`"}}]}]
	}`)

	resp, body := get(t, http.DefaultClient, fmt.Sprintf("http://127.0.0.1:%d/brew?cups=2", srv.Port()))
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "downstream", resp.Header.Get("X-Origin"))
	assert.Equal(t, "GET /brew?cups=2", body)
}

func TestHTTP_InjectionFailureIs500(t *testing.T) {
	srv := create(t, NewHTTP(imposter.Policy{AllowInjection: true}, nil), `{
		"protocol": "http",
		"stubs": [{"responses": [{"inject": "'not an object'"}]}]
	}`)
	resp, body := get(t, http.DefaultClient, fmt.Sprintf("http://127.0.0.1:%d/", srv.Port()))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "injection_failed")
}

func TestHTTP_RejectsInvalidConfig(t *testing.T) {
	a := NewHTTP(imposter.Policy{}, nil)
	payloads := []string{
		`{"protocol":"http","key":"abc","cert":"def"}`,
		`{"protocol":"http","stubs":[{"responses":[{"inject":"{}"}]}]}`,
		`{"protocol":"http","defaultResponse":"nope"}`,
	}
	for _, p := range payloads {
		cfg, err := imposter.ParseConfig([]byte(p))
		require.NoError(t, err)
		_, err = a.Create(context.Background(), cfg)
		assert.ErrorIs(t, err, imposter.ErrConfiguration, p)
	}
}

func TestHTTP_PortInUse(t *testing.T) {
	a := NewHTTP(imposter.Policy{}, nil)
	first := create(t, a, `{"protocol":"http"}`)

	cfg, err := imposter.ParseConfig([]byte(fmt.Sprintf(`{"protocol":"http","port":%d}`, first.Port())))
	require.NoError(t, err)
	_, err = a.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, imposter.ErrBind)
}

func TestHTTP_StopReleasesPort(t *testing.T) {
	a := NewHTTP(imposter.Policy{}, nil)
	cfg, err := imposter.ParseConfig([]byte(`{"protocol":"http"}`))
	require.NoError(t, err)
	srv, err := a.Create(context.Background(), cfg)
	require.NoError(t, err)
	port := srv.Port()

	require.NoError(t, srv.Stop(context.Background()))

	again := create(t, a, fmt.Sprintf(`{"protocol":"http","port":%d}`, port))
	assert.Equal(t, port, again.Port())
}

func TestHTTPS_DefaultAndOwnCertificate(t *testing.T) {
	material, err := tls.GenerateSelfSigned(nil)
	require.NoError(t, err)
	a := NewHTTPS(imposter.Policy{TLS: material}, nil)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &cryptotls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}

	srv := create(t, a, `{"protocol":"https","stubs":[{"responses":[{"is":{"body":"secure"}}]}]}`)
	resp, body := get(t, client, fmt.Sprintf("https://127.0.0.1:%d/", srv.Port()))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "secure", body)

	own, err := tls.GenerateSelfSigned(&tls.CertificateConfig{Organization: "own", CommonName: "own.local", ValidFor: time.Hour})
	require.NoError(t, err)
	payload := fmt.Sprintf(`{"protocol":"https","key":%q,"cert":%q}`, own.KeyPEM, own.CertPEM)
	srv = create(t, a, payload)
	resp, _ = get(t, client, fmt.Sprintf("https://127.0.0.1:%d/", srv.Port()))
	require.NotNil(t, resp.TLS)
	assert.Equal(t, "own.local", resp.TLS.PeerCertificates[0].Subject.CommonName)
}

func TestHTTPS_RequiresCertificate(t *testing.T) {
	a := NewHTTPS(imposter.Policy{}, nil)
	cfg, err := imposter.ParseConfig([]byte(`{"protocol":"https"}`))
	require.NoError(t, err)
	_, err = a.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, imposter.ErrConfiguration)

	cfg, err = imposter.ParseConfig([]byte(`{"protocol":"https","key":"only-key"}`))
	require.NoError(t, err)
	_, err = a.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, imposter.ErrConfiguration)
}

func TestSimplify_MultiValueQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/p?tag=a&tag=b", strings.NewReader("x"))
	r.Header.Add("Accept", "a")
	r.Header.Add("Accept", "b")
	req := simplify(r, []byte("x"))

	assert.Equal(t, []any{"a", "b"}, req["query"].(map[string]any)["tag"])
	assert.Equal(t, "a, b", req["headers"].(map[string]any)["Accept"])
	assert.Equal(t, "x", req["body"])
}

// silentUpstream accepts connections and never answers. accepted receives
// one value per connection.
func silentUpstream(t *testing.T) (addr string, accepted <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ch := make(chan struct{}, 16)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			ch <- struct{}{}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String(), ch
}

func TestHTTP_StopWithProxyInFlight(t *testing.T) {
	upstream, accepted := silentUpstream(t)

	a := NewHTTP(imposter.Policy{}, nil)
	cfg, err := imposter.ParseConfig([]byte(`{
		"protocol": "http",
		"stubs": [{"responses": [{"proxy": {"to": "http://` + upstream + `"}}]}]
	}`))
	require.NoError(t, err)
	srv, err := a.Create(context.Background(), cfg)
	require.NoError(t, err)
	port := srv.Port()

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/hang", port))
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("proxy never reached the upstream")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop(context.Background()) }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked behind an in-flight proxy request")
	}

	select {
	case <-clientDone:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight client request was never released")
	}

	again := create(t, a, fmt.Sprintf(`{"protocol":"http","port":%d}`, port))
	assert.Equal(t, port, again.Port())
}

func TestHTTP_StopWithIdleClientConnection(t *testing.T) {
	a := NewHTTP(imposter.Policy{}, nil)
	cfg, err := imposter.ParseConfig([]byte(`{"protocol":"http"}`))
	require.NoError(t, err)
	srv, err := a.Create(context.Background(), cfg)
	require.NoError(t, err)
	port := srv.Port()

	// A client that opens a connection and sends only half a request.
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\n")
	require.NoError(t, err)

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop(context.Background()) }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked behind an open client connection")
	}

	again := create(t, a, fmt.Sprintf(`{"protocol":"http","port":%d}`, port))
	assert.Equal(t, port, again.Port())
}
