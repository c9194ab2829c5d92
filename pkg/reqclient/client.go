package reqclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/fivetwenty-io/reqconf/internal/config"
	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/internal/datasource"
	reqhttp "github.com/fivetwenty-io/reqconf/internal/http"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// Config is the configuration New accepts.
type Config = config.Config

// Client is a reqconf.Client wired to an HTTP transport, data-source
// resolvers and the configured cross-cutting interceptors.
type Client struct {
	*reqconf.Client

	mu      sync.Mutex
	current *Config
	breaker *reqconf.CircuitBreaker
	nats    *datasource.NATSResolver
}

type options struct {
	logger      reqconf.Logger
	transport   reqconf.Transport
	registerer  prometheus.Registerer
	natsOptions []nats.Option
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger used by the transport and the logging interceptor.
func WithLogger(logger reqconf.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(transport reqconf.Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithPrometheus registers call metrics on registerer.
func WithPrometheus(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}

// WithNATSOptions passes connection options to the NATS data source.
func WithNATSOptions(natsOptions ...nats.Option) Option {
	return func(o *options) {
		o.natsOptions = append(o.natsOptions, natsOptions...)
	}
}

// New creates a client from cfg.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, constants.ErrConfigRequired
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.BaseURL == "" && len(cfg.Sources) == 0 && cfg.SourcesFile == "" && !cfg.NATS.Enabled() {
		return nil, constants.ErrBaseURLRequired
	}

	settings := &options{logger: reqconf.NoopLogger{}}
	for _, opt := range opts {
		opt(settings)
	}

	if settings.transport == nil {
		settings.transport = newTransport(cfg, settings.logger)
	}

	client := &Client{}

	resolver, err := client.newResolver(ctx, cfg, settings)
	if err != nil {
		return nil, err
	}

	clientOptions := []reqconf.ClientOption{
		reqconf.WithBaseURL(normalizeBaseURL(cfg.BaseURL)),
		reqconf.WithLogger(settings.logger),
		reqconf.WithRequestID(cfg.RequestID),
	}

	if resolver != nil {
		clientOptions = append(clientOptions, reqconf.WithResolver(resolver))
	}

	client.Client = reqconf.NewClient(reqconf.NewRegistry(), settings.transport, clientOptions...)

	err = client.installInterceptors(cfg, settings)
	if err != nil {
		_ = client.Close()

		return nil, err
	}

	err = client.Reload(cfg)
	if err != nil {
		_ = client.Close()

		return nil, err
	}

	return client, nil
}

// NewWithBaseURL creates a client dispatching every endpoint to baseURL.
func NewWithBaseURL(ctx context.Context, baseURL string, endpoints ...reqconf.Endpoint) (*Client, error) {
	return New(ctx, &Config{
		BaseURL:   baseURL,
		Endpoints: endpoints,
	})
}

// NewWithToken creates a client that sends token as a bearer credential on every call.
func NewWithToken(ctx context.Context, baseURL, token string, endpoints ...reqconf.Endpoint) (*Client, error) {
	return New(ctx, &Config{
		BaseURL:   baseURL,
		Token:     token,
		Endpoints: endpoints,
	})
}

// NewFromFile loads path (or the default config location when empty) and
// creates a client from it.
func NewFromFile(ctx context.Context, path string, opts ...Option) (*Client, error) {
	cfg, err := config.NewFileLoader(path, nil).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return New(ctx, cfg, opts...)
}

// Reload applies endpoint definitions and global defaults from next.
func (c *Client) Reload(next *Config) error {
	err := next.Validate()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	next = withTokenDefaults(next)

	c.mu.Lock()
	defer c.mu.Unlock()

	err = config.Reload(c.Client, c.current, next)
	if err != nil {
		return fmt.Errorf("failed to apply config: %w", err)
	}

	c.current = next

	return nil
}

// CircuitState returns the circuit breaker state, or "" when none is configured.
func (c *Client) CircuitState() string {
	if c.breaker == nil {
		return ""
	}

	return c.breaker.State()
}

// Close releases the NATS connection, if any.
func (c *Client) Close() error {
	if c.nats == nil {
		return nil
	}

	return c.nats.Close()
}

func newTransport(cfg *Config, logger reqconf.Logger) *reqhttp.Client {
	httpOptions := []reqhttp.Option{
		reqhttp.WithLogger(logger),
		reqhttp.WithDebug(cfg.HTTP.Debug),
	}

	if cfg.HTTP.Timeout > 0 {
		httpOptions = append(httpOptions, reqhttp.WithTimeout(cfg.HTTP.Timeout))
	}

	if cfg.HTTP.RetryMax > 0 || cfg.HTTP.RetryWaitMin > 0 || cfg.HTTP.RetryWaitMax > 0 {
		waitMin, waitMax := cfg.HTTP.RetryWaitMin, cfg.HTTP.RetryWaitMax
		if waitMin == 0 {
			waitMin = constants.DefaultRetryWaitMin
		}

		if waitMax == 0 {
			waitMax = constants.DefaultRetryWaitMax
		}

		httpOptions = append(httpOptions, reqhttp.WithRetryConfig(cfg.HTTP.RetryMax, waitMin, waitMax))
	}

	if cfg.HTTP.UserAgent != "" {
		httpOptions = append(httpOptions, reqhttp.WithUserAgent(cfg.HTTP.UserAgent))
	}

	return reqhttp.NewClient(httpOptions...)
}

// newResolver chains the NATS bucket ahead of the static source table,
// which merges the sources file with the inline entries.
func (c *Client) newResolver(ctx context.Context, cfg *Config, settings *options) (reqconf.Resolver, error) {
	resolvers := make([]reqconf.Resolver, 0, 2)

	if cfg.NATS.Enabled() {
		natsResolver, err := datasource.DialNATSResolver(ctx, cfg.NATS.URL, cfg.NATS.Bucket, nil, settings.natsOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to open NATS data source: %w", err)
		}

		c.nats = natsResolver
		resolvers = append(resolvers, natsResolver)
	}

	static, err := newStaticResolver(cfg)
	if err != nil {
		_ = c.Close()

		return nil, err
	}

	if static != nil {
		resolvers = append(resolvers, static)
	}

	switch len(resolvers) {
	case 0:
		return nil, nil
	case 1:
		return resolvers[0], nil
	default:
		return datasource.NewChainResolver(resolvers...), nil
	}
}

// newStaticResolver loads the sources file, if any, and lays the inline
// entries over it.
func newStaticResolver(cfg *Config) (*datasource.StaticResolver, error) {
	if cfg.SourcesFile == "" && len(cfg.Sources) == 0 {
		return nil, nil
	}

	inline, err := datasource.NewStaticResolverFromEntries(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("invalid data sources: %w", err)
	}

	if cfg.SourcesFile == "" {
		return inline, nil
	}

	static, err := datasource.LoadStaticResolver(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("invalid data sources file: %w", err)
	}

	for _, entry := range cfg.Sources {
		static.Set(entry.Key, reqconf.Source{BaseURL: strings.TrimSpace(entry.BaseURL)})
	}

	return static, nil
}

// installInterceptors registers the wildcard hooks. Metrics go last: calls
// rejected by the rate limiter or the breaker never start a measurement.
func (c *Client) installInterceptors(cfg *Config, settings *options) error {
	interceptors := make([]reqconf.Interceptor, 0, 4)

	if cfg.Verbose {
		interceptors = append(interceptors, reqconf.LoggingInterceptor(settings.logger))
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}

		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
		interceptors = append(interceptors, reqconf.Interceptor{PreCall: reqconf.RateLimitInterceptor(limiter)})
	}

	if cfg.CircuitBreaker.Enabled {
		c.breaker = reqconf.NewCircuitBreaker(&reqconf.CircuitBreakerConfig{
			Threshold:        cfg.CircuitBreaker.Threshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		})
		interceptors = append(interceptors, c.breaker.Interceptor())
	}

	if settings.registerer != nil {
		interceptors = append(interceptors, reqconf.NewPrometheusMetricsWithRegistry(settings.registerer).Interceptor())
	}

	for _, interceptor := range interceptors {
		err := c.Registry().AddGlobalInterceptor(reqconf.AllEndpoints, interceptor)
		if err != nil {
			return fmt.Errorf("failed to install interceptor: %w", err)
		}
	}

	return nil
}

// withTokenDefaults folds the bearer token into the wildcard defaults.
func withTokenDefaults(cfg *Config) *Config {
	if cfg.Token == "" {
		return cfg
	}

	out := *cfg
	out.Globals = make([]config.GlobalDefaults, 0, len(cfg.Globals)+1)

	merged := false

	for _, global := range cfg.Globals {
		if global.Endpoint == reqconf.AllEndpoints && !merged {
			headers := make(map[string]string, len(global.Headers)+1)
			for key, value := range global.Headers {
				headers[key] = value
			}

			headers["Authorization"] = "Bearer " + cfg.Token
			global.Headers = headers
			merged = true
		}

		out.Globals = append(out.Globals, global)
	}

	if !merged {
		out.Globals = append(out.Globals, config.GlobalDefaults{
			Endpoint: reqconf.AllEndpoints,
			Defaults: reqconf.Defaults{Headers: map[string]string{"Authorization": "Bearer " + cfg.Token}},
		})
	}

	return &out
}

func normalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	return baseURL
}
