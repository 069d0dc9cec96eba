// Package metrics exposes imposterd's Prometheus metrics.
//
// A Metrics value owns its own prometheus.Registry so tests and embedded
// servers do not collide on the global default registry. It carries Go
// runtime and process collectors plus the service metrics:
//
//	imposterd_imposters{protocol}                         running imposters
//	imposterd_imposter_operations_total{operation,result} create/delete outcomes
//	imposterd_admin_requests_total{method,path,status}    management API traffic
//	imposterd_admin_request_duration_seconds{method,path}  management API latency
//
// Handler serves the registry in the text exposition format for GET /metrics.
package metrics
