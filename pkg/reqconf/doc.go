// Package reqconf provides deferred, per-call request configuration on top of
// shared endpoint definitions.
//
// # Overview
//
// A model method builds a RequestBuilder pre-seeded with an endpoint's base
// URL and defaults. Call sites adjust that one request (headers, query
// parameters, path segments, body, call-scoped interceptors) and then call
// Execute, the only method that reaches the transport:
//
//	registry := reqconf.NewRegistry()
//	client := reqconf.NewClient(registry, transport, reqconf.WithBaseURL("https://api.example.com"))
//
//	_ = client.Define(reqconf.Endpoint{
//	  Key:    "user.getDetails",
//	  Method: http.MethodGet,
//	  Path:   []string{"users"},
//	})
//
//	resp, err := client.Request(ctx, "user.getDetails", userID).
//	  AddHeaders(map[string]string{"Authority": token}).
//	  AddQueryParams(map[string]string{"fields": "name,email"}).
//	  Execute(ctx)
//
// # Merge rules
//
// At Execute the builder snapshots the Registry entries for its endpoint key
// (and the AllEndpoints wildcard) and merges them with its own state: local
// headers and query parameters win over global defaults, global url params
// form the path prefix with local ones appended, a locally set body replaces
// the global one, and anything removed locally is dropped from the global
// side as well.
//
// # Interceptors
//
// Pre-call hooks run global first, then local; returning Abort(reason)
// vetoes the call with a CallAbortedError and the transport is never
// invoked. Post-call hooks run local first, then global, and may transform
// the outcome or recover from a failure by returning a response. A hook
// that raises its own error ends its phase with a HookError.
//
// # Errors
//
// Mutating or executing a builder after Execute reports an
// InvalidStateError. Transport failures surface as TransportError.
// IsInvalidState, IsAborted, AbortReason and IsTransportError help callers
// branch on them.
package reqconf
