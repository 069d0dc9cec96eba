// Package httpserver implements the http and https imposter adapters.
//
// Each imposter is a net/http server on its own listener. Incoming requests
// are reduced to {method, path, query, headers, body, requestFrom}, recorded
// when recording is on, and answered from the imposter's stubs. Responses
// carry statusCode, headers and body; a body that is not a string is sent as
// JSON. Proxy responses forward the request downstream and relay the reply.
package httpserver
