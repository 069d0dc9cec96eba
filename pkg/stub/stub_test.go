package stub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/imposterd/pkg/imposter"
)

func mustConfig(t *testing.T, payload string) *imposter.Config {
	t.Helper()
	cfg, err := imposter.ParseConfig([]byte(payload))
	require.NoError(t, err)
	return cfg
}

func mustResolver(t *testing.T, stubs string, opts Options) *Resolver {
	t.Helper()
	r, err := Parse(mustConfig(t, `{"protocol":"http","stubs":`+stubs+`}`), opts)
	require.NoError(t, err)
	return r
}

func httpRequest(method, path, body string) map[string]any {
	return map[string]any{
		"method":  method,
		"path":    path,
		"query":   map[string]any{"q": "Search"},
		"headers": map[string]any{"Content-Type": "application/json"},
		"body":    body,
	}
}

func TestResolve_NoStubs(t *testing.T) {
	r := mustResolver(t, `[]`, Options{})
	out, err := r.Resolve(httpRequest("GET", "/", ""))
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Nil(t, out.Fields)
}

func TestResolve_NilResolver(t *testing.T) {
	var r *Resolver
	out, err := r.Resolve(httpRequest("GET", "/", ""))
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Equal(t, 0, r.Len())
}

func TestResolve_FirstMatchWinsAndCycles(t *testing.T) {
	r := mustResolver(t, `[
		{"predicates":[{"equals":{"path":"/orders"}}],
		 "responses":[{"is":{"statusCode":201}},{"is":{"statusCode":400}}]},
		{"responses":[{"is":{"body":"fallback"}}]}
	]`, Options{})
	require.Equal(t, 2, r.Len())

	codes := make([]int, 0, 3)
	for range 3 {
		out, err := r.Resolve(httpRequest("POST", "/orders", ""))
		require.NoError(t, err)
		require.True(t, out.Matched)
		codes = append(codes, out.Int("statusCode", 200))
	}
	assert.Equal(t, []int{201, 400, 201}, codes)

	out, err := r.Resolve(httpRequest("GET", "/other", ""))
	require.NoError(t, err)
	body, ok := out.Text("body")
	assert.True(t, ok)
	assert.Equal(t, "fallback", body)
}

func TestResolve_MatchWithoutResponses(t *testing.T) {
	r := mustResolver(t, `[{"predicates":[{"equals":{"method":"GET"}}]}]`, Options{})
	out, err := r.Resolve(httpRequest("GET", "/", ""))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Nil(t, out.Fields)
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		predicate string
		request   map[string]any
		want      bool
	}{
		{"equals ignores case by default", `{"equals":{"method":"get","path":"/TEST"}}`, httpRequest("GET", "/test", ""), true},
		{"equals case sensitive", `{"equals":{"path":"/TEST"},"caseSensitive":true}`, httpRequest("GET", "/test", ""), false},
		{"equals nested object", `{"equals":{"query":{"q":"search"}}}`, httpRequest("GET", "/", ""), true},
		{"equals header key case", `{"equals":{"headers":{"content-type":"application/json"}}}`, httpRequest("GET", "/", ""), true},
		{"equals missing field", `{"equals":{"query":{"page":"1"}}}`, httpRequest("GET", "/", ""), false},
		{"equals JSON body member", `{"equals":{"body":{"id":42}}}`, httpRequest("POST", "/", `{"id":42,"name":"x"}`), true},
		{"deepEquals rejects extra keys", `{"deepEquals":{"body":{"id":42}}}`, httpRequest("POST", "/", `{"id":42,"name":"x"}`), false},
		{"deepEquals exact object", `{"deepEquals":{"query":{"q":"SEARCH"}}}`, httpRequest("GET", "/", ""), true},
		{"contains", `{"contains":{"body":"BC"}}`, httpRequest("POST", "/", "abcd"), true},
		{"startsWith", `{"startsWith":{"path":"/api"}}`, httpRequest("GET", "/api/v1", ""), true},
		{"endsWith", `{"endsWith":{"path":"/v2"}}`, httpRequest("GET", "/api/v1", ""), false},
		{"matches", `{"matches":{"path":"^/users/\\d+$"}}`, httpRequest("GET", "/users/12", ""), true},
		{"matches case sensitive", `{"matches":{"method":"^get$"},"caseSensitive":true}`, httpRequest("GET", "/", ""), false},
		{"exists true", `{"exists":{"query":{"q":true}}}`, httpRequest("GET", "/", ""), true},
		{"exists false", `{"exists":{"query":{"page":false}}}`, httpRequest("GET", "/", ""), true},
		{"exists empty body", `{"exists":{"body":true}}`, httpRequest("GET", "/", ""), false},
		{"except strips before compare", `{"equals":{"path":"/users"},"except":"\\d+$"}`, httpRequest("GET", "/users123", ""), true},
		{"jsonpath selector", `{"equals":{"body":"Alice"},"jsonpath":{"selector":"$.user.name"}}`, httpRequest("POST", "/", `{"user":{"name":"alice"}}`), true},
		{"jsonpath on non JSON", `{"equals":{"body":"alice"},"jsonpath":{"selector":"$.user.name"}}`, httpRequest("POST", "/", `alice`), false},
		{"not", `{"not":{"equals":{"method":"POST"}}}`, httpRequest("GET", "/", ""), true},
		{"or", `{"or":[{"equals":{"path":"/a"}},{"equals":{"path":"/b"}}]}`, httpRequest("GET", "/b", ""), true},
		{"and", `{"and":[{"equals":{"method":"GET"}},{"equals":{"path":"/b"}}]}`, httpRequest("GET", "/a", ""), false},
		{"array expected", `{"equals":{"query":{"tag":["a","b"]}}}`, map[string]any{"query": map[string]any{"tag": []any{"b", "a", "c"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePredicate(json.RawMessage(tt.predicate))
			require.NoError(t, err)
			got, err := p.Match(tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_InvalidStubs(t *testing.T) {
	tests := []struct {
		name  string
		stubs string
	}{
		{"no operator", `[{"predicates":[{"caseSensitive":true}]}]`},
		{"two operators", `[{"predicates":[{"equals":{},"contains":{}}]}]`},
		{"bad regex", `[{"predicates":[{"matches":{"path":"("}}]}]`},
		{"bad except", `[{"predicates":[{"equals":{"path":"/"},"except":"("}]}]`},
		{"bad selector", `[{"predicates":[{"equals":{"body":"x"},"jsonpath":{"selector":"$[["}}]}]`},
		{"or not array", `[{"predicates":[{"or":{}}]}]`},
		{"two response kinds", `[{"responses":[{"is":{},"proxy":{"to":"http://x"}}]}]`},
		{"relative proxy", `[{"responses":[{"proxy":{"to":"/relative"}}]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(mustConfig(t, `{"protocol":"http","stubs":`+tt.stubs+`}`), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, imposter.ErrConfiguration)
		})
	}
}

func TestParse_InjectionRequiresPermission(t *testing.T) {
	stubs := []string{
		`[{"predicates":[{"inject":"request.method == 'GET'"}]}]`,
		`[{"predicates":[{"not":{"inject":"true"}}]}]`,
		`[{"responses":[{"inject":"{'statusCode': 204}"}]}]`,
	}
	for _, s := range stubs {
		_, err := Parse(mustConfig(t, `{"protocol":"http","stubs":`+s+`}`), Options{})
		assert.ErrorIs(t, err, imposter.ErrInjectionNotAllowed)
		assert.ErrorIs(t, err, imposter.ErrConfiguration)

		_, err = Parse(mustConfig(t, `{"protocol":"http","stubs":`+s+`}`), Options{AllowInjection: true})
		assert.NoError(t, err)
	}
}

func TestResolve_Injection(t *testing.T) {
	r := mustResolver(t, `[
		{"predicates":[{"inject":"request.path startsWith '/inj'"}],
		 "responses":[{"inject":"{'statusCode': 202, 'body': request.method + ' ' + request.path}"}]}
	]`, Options{AllowInjection: true})

	out, err := r.Resolve(httpRequest("PUT", "/inject", ""))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, 202, out.Int("statusCode", 200))
	body, _ := out.Text("body")
	assert.Equal(t, "PUT /inject", body)

	out, err = r.Resolve(httpRequest("PUT", "/other", ""))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestResolve_InjectionMustReturnObject(t *testing.T) {
	r := mustResolver(t, `[{"responses":[{"inject":"'plain'"}]}]`, Options{AllowInjection: true})
	_, err := r.Resolve(httpRequest("GET", "/", ""))
	assert.Error(t, err)
}

func TestResolve_Proxy(t *testing.T) {
	r := mustResolver(t, `[{"responses":[{"proxy":{"to":"http://localhost:8080"}}]}]`, Options{})
	out, err := r.Resolve(httpRequest("GET", "/", ""))
	require.NoError(t, err)
	require.NotNil(t, out.Proxy)
	assert.Equal(t, "localhost:8080", out.Proxy.To.Host)
}

func TestOutcome_Accessors(t *testing.T) {
	out := Outcome{Fields: map[string]any{
		"statusCode": json.Number("418"),
		"body":       map[string]any{"ok": true},
		"headers":    map[string]any{"X-Test": "1"},
	}}
	assert.Equal(t, 418, out.Int("statusCode", 200))
	assert.Equal(t, 7, out.Int("missing", 7))
	body, ok := out.Text("body")
	assert.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, body)
	assert.Equal(t, "1", out.Object("headers")["X-Test"])
}

func TestHasStubs(t *testing.T) {
	assert.False(t, HasStubs(mustConfig(t, `{"protocol":"smtp"}`)))
	assert.False(t, HasStubs(mustConfig(t, `{"protocol":"smtp","stubs":[]}`)))
	assert.True(t, HasStubs(mustConfig(t, `{"protocol":"smtp","stubs":[{}]}`)))
}

func TestResolver_ProxyTargets(t *testing.T) {
	r := mustResolver(t, `[
		{"responses":[{"is":{}},{"proxy":{"to":"tcp://localhost:9000"}}]},
		{"responses":[{"proxy":{"to":"http://localhost:8080"}}]}
	]`, Options{})
	targets := r.ProxyTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, "tcp", targets[0].Scheme)
	assert.Equal(t, "http", targets[1].Scheme)
}
