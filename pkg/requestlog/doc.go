// Package requestlog captures the requests an imposter receives so callers
// can inspect them through the management API ("mock recording").
//
// This is distinct from operational logging, which uses log/slog.
//
// # Core Types
//
// Entry is one captured request. Its Request map holds the protocol-specific
// request fields (method and path for http, data for tcp, envelope and
// subject for smtp, and so on) exactly as stub predicates see them.
//
// # Usage
//
//	store := requestlog.NewMemoryStore(0)
//	store.Log(requestlog.NewEntry(map[string]any{
//	    "requestFrom": "127.0.0.1:53712",
//	    "data":        "hello",
//	}))
//	fmt.Println(store.Count())
//
// # Package Design
//
// This is a leaf package with no internal dependencies, allowing it to be
// imported by any package without creating import cycles.
package requestlog
