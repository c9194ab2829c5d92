package reqconf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fivetwenty-io/reqconf/internal/constants"
)

// Source is where an endpoint's calls go.
type Source struct {
	BaseURL   string
	Transport Transport
}

// Resolver picks the data source for an endpoint key. Empty fields in the
// returned Source fall back to the Client defaults.
type Resolver interface {
	Resolve(ctx context.Context, endpointKey string) (Source, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(ctx context.Context, endpointKey string) (Source, error)

// Resolve calls f(ctx, endpointKey).
func (f ResolverFunc) Resolve(ctx context.Context, endpointKey string) (Source, error) {
	return f(ctx, endpointKey)
}

// Endpoint is the canonical definition a model method builds requests from.
type Endpoint struct {
	// Key identifies the logical API operation, e.g. "user.getDetails".
	Key string `json:"key" yaml:"key" mapstructure:"key"`
	// Method is the HTTP method.
	Method string `json:"method" yaml:"method" mapstructure:"method"`
	// Path holds leading path segments; call arguments are appended after them.
	Path []string `json:"path,omitempty" yaml:"path,omitempty" mapstructure:"path"`
	// Defaults seed the builder's local state. Call sites may override or remove them.
	Defaults Defaults `json:"defaults,omitempty" yaml:"defaults,omitempty" mapstructure:"defaults"`
}

// Client hosts endpoint definitions and produces pre-seeded builders for them.
type Client struct {
	registry  *Registry
	transport Transport
	resolver  Resolver
	baseURL   string
	logger    Logger
	requestID bool

	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL used when no resolver supplies one.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithResolver sets the data-source resolver consulted for every request.
func WithResolver(resolver Resolver) ClientOption {
	return func(c *Client) {
		c.resolver = resolver
	}
}

// WithLogger sets the logger handed to builders.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestID stamps every new request with a random X-Request-Id header.
func WithRequestID(enabled bool) ClientOption {
	return func(c *Client) {
		c.requestID = enabled
	}
}

// NewClient creates a client that registers endpoints in registry and
// dispatches through transport unless a resolver overrides it.
func NewClient(registry *Registry, transport Transport, opts ...ClientOption) *Client {
	if registry == nil {
		registry = NewRegistry()
	}

	client := &Client{
		registry:  registry,
		transport: transport,
		logger:    NoopLogger{},
		endpoints: make(map[string]Endpoint),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Registry returns the registry endpoints are defined in.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Define registers an endpoint definition, replacing any previous one with
// the same key, and creates its registry entry.
func (c *Client) Define(endpoint Endpoint) error {
	if endpoint.Key == "" {
		return ErrEndpointKeyRequired
	}

	if endpoint.Method == "" {
		return fmt.Errorf("%w for endpoint %s", ErrMethodRequired, endpoint.Key)
	}

	err := c.registry.Define(endpoint.Key)
	if err != nil {
		return fmt.Errorf("defining endpoint %s: %w", endpoint.Key, err)
	}

	endpoint.Method = strings.ToUpper(endpoint.Method)
	endpoint.Defaults = endpoint.Defaults.normalized()

	c.mu.Lock()
	c.endpoints[endpoint.Key] = endpoint
	c.mu.Unlock()

	return nil
}

// Undefine removes the endpoint definition for key and reports whether one
// existed. The registry entry for key, with its globals and interceptors,
// is left in place. Builders already produced are unaffected.
func (c *Client) Undefine(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.endpoints[key]
	delete(c.endpoints, key)

	return ok
}

// Endpoint returns the definition for key.
func (c *Client) Endpoint(key string) (Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	endpoint, ok := c.endpoints[key]

	return endpoint, ok
}

// Endpoints returns all definitions sorted by key.
func (c *Client) Endpoints() []Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	endpoints := make([]Endpoint, 0, len(c.endpoints))
	for _, endpoint := range c.endpoints {
		endpoints = append(endpoints, endpoint)
	}

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Key < endpoints[j].Key
	})

	return endpoints
}

// Request builds a new request for the endpoint key. args are appended as
// path segments after the endpoint's own path. Resolution or definition
// failures are reported through the returned builder's Err and Execute.
func (c *Client) Request(ctx context.Context, key string, args ...string) *RequestBuilder {
	endpoint, ok := c.Endpoint(key)
	if !ok {
		return newFailedBuilder(key, fmt.Errorf("%w: %s", ErrEndpointNotDefined, key))
	}

	source := Source{BaseURL: c.baseURL, Transport: c.transport}

	if c.resolver != nil {
		resolved, err := c.resolver.Resolve(ctx, key)
		if err != nil && !errors.Is(err, ErrSourceNotFound) {
			return newFailedBuilder(key, fmt.Errorf("resolving data source for %s: %w", key, err))
		}

		if resolved.BaseURL != "" {
			source.BaseURL = resolved.BaseURL
		}

		if resolved.Transport != nil {
			source.Transport = resolved.Transport
		}
	}

	builder := NewRequestBuilder(key, endpoint.Method, source.BaseURL, source.Transport,
		WithRegistry(c.registry),
		WithBuilderLogger(c.logger),
	)

	builder.
		AddURLParams(endpoint.Path...).
		AddURLParams(endpoint.Defaults.URLParams...).
		AddURLParams(args...).
		AddQueryParams(endpoint.Defaults.QueryParams).
		AddHeaders(endpoint.Defaults.Headers)

	if endpoint.Defaults.Body != nil {
		builder.SetBody(endpoint.Defaults.Body)
	}

	if c.requestID {
		builder.AddHeaders(map[string]string{
			http.CanonicalHeaderKey(constants.HeaderRequestID): uuid.NewString(),
		})
	}

	return builder
}
