package stub

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/getmockd/imposterd/pkg/imposter"
)

// Stub is a compiled predicate/response pair.
type Stub struct {
	predicates []*Predicate
	responses  []*Response
	next       atomic.Uint64
}

// Matches reports whether every predicate accepts the request. A stub with
// no predicates matches everything.
func (s *Stub) Matches(request map[string]any) (bool, error) {
	for _, p := range s.predicates {
		ok, err := p.Match(request)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// nextResponse returns the next response in rotation, or nil when the stub
// has none.
func (s *Stub) nextResponse() *Response {
	if len(s.responses) == 0 {
		return nil
	}
	n := s.next.Add(1) - 1
	return s.responses[n%uint64(len(s.responses))]
}

type rawStub struct {
	Predicates []json.RawMessage `json:"predicates"`
	Responses  []json.RawMessage `json:"responses"`
}

// Options control compilation.
type Options struct {
	// AllowInjection permits inject predicates and responses.
	AllowInjection bool
}

// Parse compiles the stubs member of an imposter configuration.
func Parse(cfg *imposter.Config, opts Options) (*Resolver, error) {
	var payload struct {
		Stubs []rawStub `json:"stubs"`
	}
	if err := cfg.Decode(&payload); err != nil {
		return nil, err
	}
	return compile(payload.Stubs, opts)
}

// HasStubs reports whether the configuration declares any stubs.
func HasStubs(cfg *imposter.Config) bool {
	raw, ok := cfg.Fields["stubs"]
	if !ok {
		return false
	}
	var stubs []json.RawMessage
	if err := json.Unmarshal(raw, &stubs); err != nil {
		return true
	}
	return len(stubs) > 0
}

func compile(raws []rawStub, opts Options) (*Resolver, error) {
	r := &Resolver{stubs: make([]*Stub, 0, len(raws))}
	injects := false

	for i, raw := range raws {
		s := &Stub{}
		for j, rp := range raw.Predicates {
			p, err := parsePredicate(rp)
			if err != nil {
				return nil, fmt.Errorf("stubs[%d].predicates[%d]: %w", i, j, err)
			}
			injects = injects || p.usesInjection()
			s.predicates = append(s.predicates, p)
		}
		for j, rr := range raw.Responses {
			resp, err := parseResponse(rr)
			if err != nil {
				return nil, fmt.Errorf("stubs[%d].responses[%d]: %w", i, j, err)
			}
			injects = injects || resp.Kind == KindInject
			s.responses = append(s.responses, resp)
		}
		r.stubs = append(r.stubs, s)
	}

	if injects && !opts.AllowInjection {
		return nil, imposter.ErrInjectionNotAllowed
	}
	return r, nil
}

// Resolver picks the response for a request.
type Resolver struct {
	stubs []*Stub
}

// Len returns the number of stubs.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.stubs)
}

// ProxyTargets lists the downstream URLs of every proxy response, so
// adapters can reject schemes they cannot speak.
func (r *Resolver) ProxyTargets() []*url.URL {
	if r == nil {
		return nil
	}
	var out []*url.URL
	for _, s := range r.stubs {
		for _, resp := range s.responses {
			if resp.Kind == KindProxy {
				out = append(out, resp.Proxy.To)
			}
		}
	}
	return out
}

// Resolve finds the first matching stub and produces its next response.
// When no stub matches, or the match has no responses, the outcome is empty
// and the adapter answers with its default.
func (r *Resolver) Resolve(request map[string]any) (Outcome, error) {
	if r == nil {
		return Outcome{}, nil
	}
	for _, s := range r.stubs {
		ok, err := s.Matches(request)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			continue
		}
		resp := s.nextResponse()
		if resp == nil {
			return Outcome{Matched: true}, nil
		}
		out, err := resp.produce(request)
		if err != nil {
			return Outcome{}, err
		}
		out.Matched = true
		return out, nil
	}
	return Outcome{}, nil
}
