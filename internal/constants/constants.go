package constants

import "time"

// File permissions.
const (
	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DataSourceDialTimeout bounds connecting to a NATS data source.
	DataSourceDialTimeout = 10 * time.Second
)

// Retry limits for the HTTP transport.
const (
	// LowRetryMax is used for operations that should retry fewer times.
	LowRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Concurrency limits.
const (
	// DefaultConcurrencyLimit limits concurrent executions in a batch.
	DefaultConcurrencyLimit = 3
)

// Circuit breaker defaults.
const (
	// CircuitBreakerThreshold is the failure threshold for circuit breaker.
	CircuitBreakerThreshold = 5

	// CircuitBreakerSuccessThreshold is the success threshold for circuit breaker.
	CircuitBreakerSuccessThreshold = 2

	// CircuitBreakerTimeout is the timeout for circuit breaker.
	CircuitBreakerTimeout = 30 * time.Second
)

// Circuit states.
const (
	// StatusClosed indicates a closed circuit.
	StatusClosed = "closed"

	// StatusOpen indicates an open state.
	StatusOpen = "open"

	// StatusHalfOpen indicates a half-open state.
	StatusHalfOpen = "half-open"
)

// HTTP headers and media types.
const (
	// HeaderRequestID carries the per-call request identifier.
	HeaderRequestID = "X-Request-Id"

	// HeaderContentType is the Content-Type header.
	HeaderContentType = "Content-Type"

	// HeaderAccept is the Accept header.
	HeaderAccept = "Accept"

	// HeaderUserAgent is the User-Agent header.
	HeaderUserAgent = "User-Agent"

	// MediaTypeJSON is the JSON media type.
	MediaTypeJSON = "application/json"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "reqconf-go/1.0"
)

// Configuration.
const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "REQCONF"

	// ConfigDirName is the directory under $HOME holding the config file.
	ConfigDirName = ".reqconf"

	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"

	// ConfigFileType is the config file format.
	ConfigFileType = "yml"
)

// Output formatting.
const (
	// FormatJSON selects JSON output.
	FormatJSON = "json"

	// FormatYAML selects YAML output.
	FormatYAML = "yaml"

	// FormatTable selects table output.
	FormatTable = "table"
)
