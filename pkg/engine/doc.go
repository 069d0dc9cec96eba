// Package engine orchestrates imposter lifecycles.
//
// The Manager sits between the management API and the protocol adapters:
//
//	admin API ──> Manager ──> protocol.AdapterSet ──> listener
//	                 │
//	                 └──> registry.Registry (port -> imposter)
//
// Creation on an explicit port reserves the port in the registry first and
// binds outside the registry lock, so concurrent creations on one port
// resolve to a single winner without blocking unrelated ports. Creation on
// an ephemeral port binds first and registers afterwards.
//
// ReplaceAll clears the registry, then creates the given configurations in
// order and stops at the first failure; its error is a *ReplaceError whose
// Index names the failing entry.
package engine
