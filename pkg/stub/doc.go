// Package stub decides how an imposter answers a request.
//
// A stub pairs a list of predicates with a list of responses. The first stub
// whose predicates all match a request wins, and its responses are handed out
// in round-robin order. Requests are protocol-neutral maps, so the same
// matching applies to http, tcp and custom imposters.
//
// Predicates support equals, deepEquals, contains, startsWith, endsWith,
// matches, exists, not, or, and and inject, with the caseSensitive, except and
// jsonpath modifiers. Responses are is, inject or proxy.
//
// inject predicates and responses are expr-lang expressions evaluated against
// a single variable, request. They are refused with
// imposter.ErrInjectionNotAllowed unless injection is enabled.
package stub
