// Package admin serves the imposter management API.
//
// # Routes
//
//	GET    /                               hypermedia index
//	GET    /imposters                      list imposters
//	POST   /imposters                      create an imposter
//	PUT    /imposters                      replace every imposter
//	DELETE /imposters                      delete every imposter
//	GET    /imposters/{port}               one imposter
//	DELETE /imposters/{port}               delete one imposter (idempotent)
//	DELETE /imposters/{port}/savedRequests clear recorded requests
//	GET    /config                         effective server configuration
//	GET    /logs                           server log lines
//	GET    /health                         liveness
//	GET    /metrics                        Prometheus exposition
//
// Single-imposter routes other than DELETE pass through an existence guard
// that resolves the port once and hands the imposter to the handler, or
// answers 404 before the handler runs.
//
// Errors use the envelope {"errors":[{"code":..., "message":...}]}. The
// code is derived from the imposter error sentinels:
//
//	bad_data              400  invalid configuration
//	invalid_injection     400  injection used without --allowInjection
//	unsupported_protocol  400  unknown protocol
//	bind_failed           400  port could not be bound
//	resource_conflict     409  port already has an imposter
//	no_such_resource      404  no imposter on the port
package admin
