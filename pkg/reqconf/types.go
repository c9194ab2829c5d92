package reqconf

import (
	"context"
	"net/http"
)

// Response is the settled result of a transport call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	// Value holds a decoded or transformed result set by post-call interceptors.
	Value any
}

// Clone returns a shallow copy of the response with its own header map.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}

	out := *r
	out.Headers = r.Headers.Clone()

	return &out
}

// Transport dispatches a merged configuration. Implementations must not
// retain cfg beyond the call.
type Transport interface {
	Do(ctx context.Context, cfg *Config) (*Response, error)
}

// TransportFunc adapts an ordinary function to the Transport interface.
type TransportFunc func(ctx context.Context, cfg *Config) (*Response, error)

// Do calls f(ctx, cfg).
func (f TransportFunc) Do(ctx context.Context, cfg *Config) (*Response, error) {
	return f(ctx, cfg)
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}
