package stub

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// Kind identifies how a response is produced.
type Kind string

// Response kinds.
const (
	KindIs     Kind = "is"
	KindInject Kind = "inject"
	KindProxy  Kind = "proxy"
)

// Response is one compiled entry of a stub's responses list.
type Response struct {
	Kind   Kind
	Fields map[string]any
	Proxy  *Proxy

	program *vm.Program
}

// Proxy forwards the request to a downstream service.
type Proxy struct {
	To *url.URL
}

// Outcome is the result of resolving a request.
type Outcome struct {
	// Matched is true when a stub accepted the request.
	Matched bool

	// Fields are the protocol response fields (statusCode, body, data, ...).
	// Adapters fill anything missing with their defaults.
	Fields map[string]any

	// Proxy is set when the response must be fetched downstream.
	Proxy *Proxy
}

func parseResponse(raw json.RawMessage) (*Response, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, imposter.Configurationf("response must be an object: %v", err)
	}

	var found []Kind
	for _, k := range []Kind{KindIs, KindInject, KindProxy} {
		if _, ok := members[string(k)]; ok {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		// An empty response object means "use the defaults".
		return &Response{Kind: KindIs}, nil
	case 1:
	default:
		return nil, imposter.Configurationf("response declares more than one of %v", found)
	}

	kind := found[0]
	body := members[string(kind)]
	switch kind {
	case KindIs:
		var fields map[string]any
		if err := decodeValue(body, &fields); err != nil {
			return nil, imposter.Configurationf("is: %v", err)
		}
		return &Response{Kind: KindIs, Fields: fields}, nil

	case KindInject:
		var src string
		if err := json.Unmarshal(body, &src); err != nil {
			return nil, imposter.Configurationf("inject must be a string expression")
		}
		program, err := compileResponseInjection(src)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindInject, program: program}, nil

	default:
		var spec struct {
			To string `json:"to"`
		}
		if err := json.Unmarshal(body, &spec); err != nil {
			return nil, imposter.Configurationf("proxy: %v", err)
		}
		to, err := url.Parse(spec.To)
		if err != nil || spec.To == "" || to.Scheme == "" || to.Host == "" {
			return nil, imposter.Configurationf("proxy.to must be an absolute URL, got %q", spec.To)
		}
		return &Response{Kind: KindProxy, Proxy: &Proxy{To: to}}, nil
	}
}

func (r *Response) produce(request map[string]any) (Outcome, error) {
	switch r.Kind {
	case KindInject:
		fields, err := runResponseInjection(r.program, request)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Fields: fields}, nil
	case KindProxy:
		return Outcome{Proxy: r.Proxy}, nil
	default:
		return Outcome{Fields: r.Fields}, nil
	}
}

// String returns a short description for logging.
func (r *Response) String() string {
	if r.Kind == KindProxy {
		return fmt.Sprintf("proxy to %s", r.Proxy.To)
	}
	return string(r.Kind)
}

// Int reads an integer response field, falling back to def.
func (o Outcome) Int(key string, def int) int {
	switch v := o.Fields[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// Text reads a response field as wire text. Objects and arrays are
// JSON-encoded.
func (o Outcome) Text(key string) (string, bool) {
	v, ok := o.Fields[key]
	if !ok || v == nil {
		return "", false
	}
	return textOf(v), true
}

// Object reads a response field holding an object, such as headers.
func (o Outcome) Object(key string) map[string]any {
	obj, _ := o.Fields[key].(map[string]any)
	return obj
}
