package reqconf

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// RequestBuilder carries the pending configuration of a single call.
//
// Mutation methods return the builder for chaining. A failing mutation
// records its error, available immediately from Err; Execute returns the
// first recorded error without dispatching. A builder is single-use: once
// Execute has been invoked every further mutation or Execute reports an
// InvalidStateError. A RequestBuilder is not safe for concurrent use.
type RequestBuilder struct {
	endpointKey string
	state       *configState
	transport   Transport
	registry    *Registry
	logger      Logger
	err         error
}

// BuilderOption configures a RequestBuilder at construction.
type BuilderOption func(*RequestBuilder)

// WithRegistry supplies the registry consulted at Execute time.
func WithRegistry(registry *Registry) BuilderOption {
	return func(b *RequestBuilder) {
		b.registry = registry
	}
}

// WithBuilderLogger sets the logger used for dispatch diagnostics.
func WithBuilderLogger(logger Logger) BuilderOption {
	return func(b *RequestBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRequestBuilder creates a builder for endpointKey that will dispatch a
// method request against baseURL through transport.
func NewRequestBuilder(endpointKey, method, baseURL string, transport Transport, opts ...BuilderOption) *RequestBuilder {
	builder := &RequestBuilder{
		endpointKey: endpointKey,
		state:       newConfigState(strings.ToUpper(method), baseURL),
		transport:   transport,
		logger:      NoopLogger{},
	}

	for _, opt := range opts {
		opt(builder)
	}

	switch {
	case endpointKey == "":
		builder.err = ErrEndpointKeyRequired
	case method == "":
		builder.err = ErrMethodRequired
	case baseURL == "":
		builder.err = ErrBaseURLRequired
	case transport == nil:
		builder.err = ErrTransportRequired
	}

	return builder
}

// newFailedBuilder returns a builder that will only report err.
func newFailedBuilder(endpointKey string, err error) *RequestBuilder {
	return &RequestBuilder{
		endpointKey: endpointKey,
		state:       newConfigState("", ""),
		logger:      NoopLogger{},
		err:         err,
	}
}

// EndpointKey returns the endpoint identity of the builder.
func (b *RequestBuilder) EndpointKey() string {
	return b.endpointKey
}

// Err returns the first error recorded by construction or a mutation.
func (b *RequestBuilder) Err() error {
	return b.err
}

// Executed reports whether Execute has been invoked.
func (b *RequestBuilder) Executed() bool {
	return b.state.executed
}

// mutable reports whether op may proceed, recording an error otherwise.
func (b *RequestBuilder) mutable(op string) bool {
	if b.state.executed {
		b.err = &InvalidStateError{Op: op}

		return false
	}

	return b.err == nil
}

// AddURLParams appends path segments.
func (b *RequestBuilder) AddURLParams(values ...string) *RequestBuilder {
	if !b.mutable("AddURLParams") {
		return b
	}

	b.state.urlParams = append(b.state.urlParams, values...)

	return b
}

// RemoveURLParams removes every local segment equal to one of values and
// masks the same values in global defaults. Absent values are ignored.
func (b *RequestBuilder) RemoveURLParams(values ...string) *RequestBuilder {
	if !b.mutable("RemoveURLParams") {
		return b
	}

	for _, value := range values {
		b.state.removedURLParams[value] = struct{}{}
	}

	kept := b.state.urlParams[:0]
	for _, param := range b.state.urlParams {
		if _, removed := b.state.removedURLParams[param]; !removed {
			kept = append(kept, param)
		}
	}

	b.state.urlParams = kept

	return b
}

// AddQueryParams merges params into the query, overwriting existing keys.
func (b *RequestBuilder) AddQueryParams(params map[string]string) *RequestBuilder {
	if !b.mutable("AddQueryParams") {
		return b
	}

	for key := range params {
		if key == "" {
			b.err = fmt.Errorf("%w: empty key", ErrInvalidQueryKey)

			return b
		}
	}

	for key, value := range params {
		b.state.queryParams[key] = value
		delete(b.state.removedQuery, key)
	}

	return b
}

// RemoveQueryParams deletes query keys locally and masks them in global defaults.
func (b *RequestBuilder) RemoveQueryParams(keys ...string) *RequestBuilder {
	if !b.mutable("RemoveQueryParams") {
		return b
	}

	for _, key := range keys {
		delete(b.state.queryParams, key)
		b.state.removedQuery[key] = struct{}{}
	}

	return b
}

// AddHeaders merges headers, overwriting existing keys case-insensitively.
func (b *RequestBuilder) AddHeaders(headers map[string]string) *RequestBuilder {
	if !b.mutable("AddHeaders") {
		return b
	}

	for key := range headers {
		if !validHeaderName(key) {
			b.err = fmt.Errorf("%w: %q", ErrInvalidHeaderName, key)

			return b
		}
	}

	for key, value := range headers {
		canonical := http.CanonicalHeaderKey(key)
		b.state.headers[canonical] = value
		delete(b.state.removedHeaders, canonical)
	}

	return b
}

// RemoveHeaders deletes headers locally and masks them in global defaults.
func (b *RequestBuilder) RemoveHeaders(keys ...string) *RequestBuilder {
	if !b.mutable("RemoveHeaders") {
		return b
	}

	for _, key := range keys {
		canonical := http.CanonicalHeaderKey(key)
		delete(b.state.headers, canonical)
		b.state.removedHeaders[canonical] = struct{}{}
	}

	return b
}

// SetBody replaces the payload. Setting nil explicitly clears any default body.
func (b *RequestBuilder) SetBody(payload any) *RequestBuilder {
	if !b.mutable("SetBody") {
		return b
	}

	b.state.body = payload
	b.state.bodySet = true

	return b
}

// AddInterceptor attaches call-scoped hooks.
func (b *RequestBuilder) AddInterceptor(interceptor Interceptor) *RequestBuilder {
	if !b.mutable("AddInterceptor") {
		return b
	}

	if interceptor.IsEmpty() {
		b.err = ErrEmptyInterceptor

		return b
	}

	if interceptor.PreCall != nil {
		b.state.preCall = append(b.state.preCall, preCallHook{fn: interceptor.PreCall, abandon: interceptor.Abandon})
	}

	if interceptor.PostCall != nil {
		b.state.postCall = append(b.state.postCall, interceptor.PostCall)
	}

	return b
}

// Preview returns the configuration Execute would dispatch right now,
// without running interceptors or consuming the builder.
func (b *RequestBuilder) Preview() (*Config, error) {
	if b.state.executed {
		return nil, &InvalidStateError{Op: "Preview"}
	}

	if b.err != nil {
		return nil, b.err
	}

	cfg, _ := b.merge()

	return cfg, nil
}

// Execute merges the registry state with the local configuration, runs the
// pre-call chain, dispatches, and threads the outcome through the post-call
// chain. It may be called once.
func (b *RequestBuilder) Execute(ctx context.Context) (*Response, error) {
	if b.state.executed {
		return nil, &InvalidStateError{Op: "Execute"}
	}

	b.state.executed = true

	if b.err != nil {
		return nil, b.err
	}

	cfg, chain := b.merge()

	err := chain.ExecutePreCall(ctx, cfg)
	if err != nil {
		b.logger.Warn("Call rejected before dispatch", map[string]interface{}{
			"endpoint": b.endpointKey,
			"error":    err.Error(),
		})

		return nil, err
	}

	b.logger.Debug("Dispatching call", map[string]interface{}{
		"endpoint": b.endpointKey,
		"method":   cfg.Method(),
		"url":      cfg.URL(),
	})

	resp, err := b.transport.Do(ctx, cfg)
	if err != nil {
		err = asTransportError(err)

		if ctx.Err() != nil {
			chain.Abandon(ctx, cfg, err)

			return resp, err
		}
	} else if resp == nil {
		err = &TransportError{Reason: ErrNilResponse.Error(), Err: ErrNilResponse}
	}

	return chain.ExecutePostCall(ctx, cfg, resp, err)
}

// merge builds the merged configuration and the interceptor chain from a
// fresh registry snapshot.
func (b *RequestBuilder) merge() (*Config, *InterceptorChain) {
	var entries []*registryEntry
	if b.registry != nil {
		entries = b.registry.snapshot(b.endpointKey)
	}

	globals := make([]Defaults, 0, len(entries))
	chain := NewInterceptorChain()

	for _, entry := range entries {
		if entry.defaults != nil {
			globals = append(globals, *entry.defaults)
		}

		for _, hook := range entry.preCall {
			chain.AddPreCallWithAbandon(ScopeGlobal, hook.fn, hook.abandon)
		}
	}

	for _, hook := range b.state.preCall {
		chain.AddPreCallWithAbandon(ScopeLocal, hook.fn, hook.abandon)
	}

	for _, fn := range b.state.postCall {
		chain.AddPostCall(ScopeLocal, fn)
	}

	// Post-call hooks unwind in the opposite scope order: endpoint, then wildcard.
	for i := len(entries) - 1; i >= 0; i-- {
		for _, fn := range entries[i].postCall {
			chain.AddPostCall(ScopeGlobal, fn)
		}
	}

	return mergeConfig(b.endpointKey, globals, b.state), chain
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}

	return true
}
