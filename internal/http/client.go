// Package http provides the retrying HTTP transport requests are dispatched through.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// Client is a reqconf.Transport backed by a retrying HTTP client.
type Client struct {
	httpClient *retryablehttp.Client
	userAgent  string
	logger     reqconf.Logger
	debug      bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for request diagnostics and retry notices.
func WithLogger(logger reqconf.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			return
		}

		c.logger = logger
		c.httpClient.Logger = &leveledLogger{logger: logger}
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig sets the retry budget and backoff bounds.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent sent when a call does not carry one.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient.HTTPClient = httpClient
		}
	}
}

// NewClient creates a new HTTP transport.
func NewClient(opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.LowRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout
	retryClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	client := &Client{
		httpClient: retryClient,
		userAgent:  constants.DefaultUserAgent,
		logger:     reqconf.NoopLogger{},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Do dispatches the merged configuration. A response with a status of 400
// or above is returned together with a *reqconf.TransportError.
func (c *Client) Do(ctx context.Context, cfg *reqconf.Config) (*reqconf.Response, error) {
	body, contentType, err := encodeBody(cfg)
	if err != nil {
		return nil, &reqconf.TransportError{Reason: err.Error(), Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, cfg.Method(), cfg.URL(), body)
	if err != nil {
		return nil, &reqconf.TransportError{Reason: fmt.Sprintf("creating request: %v", err), Err: err}
	}

	req.Header = cfg.Header()

	if contentType != "" && req.Header.Get(constants.HeaderContentType) == "" {
		req.Header.Set(constants.HeaderContentType, contentType)
	}

	if req.Header.Get(constants.HeaderAccept) == "" {
		req.Header.Set(constants.HeaderAccept, constants.MediaTypeJSON)
	}

	if req.Header.Get(constants.HeaderUserAgent) == "" && c.userAgent != "" {
		req.Header.Set(constants.HeaderUserAgent, c.userAgent)
	}

	if c.debug {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"endpoint": cfg.EndpointKey(),
			"method":   cfg.Method(),
			"url":      cfg.URL(),
			"headers":  redactHeaders(req.Header),
		})
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &reqconf.TransportError{Reason: err.Error(), Err: err}
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &reqconf.TransportError{
			Reason:     fmt.Sprintf("reading response body: %v", err),
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	if c.debug {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"endpoint":    cfg.EndpointKey(),
			"status_code": resp.StatusCode,
			"duration":    time.Since(start).String(),
			"body_size":   len(respBody),
		})
	}

	response := &reqconf.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return response, &reqconf.TransportError{
			Reason:     errorReason(resp.StatusCode, respBody),
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	return response, nil
}

// encodeBody renders the call payload. Byte slices, strings and readers are
// sent as-is; anything else is encoded as JSON.
func encodeBody(cfg *reqconf.Config) (interface{}, string, error) {
	if !cfg.HasBody() {
		return nil, "", nil
	}

	switch payload := cfg.Body().(type) {
	case []byte:
		return payload, "", nil
	case string:
		return []byte(payload), "", nil
	case io.Reader:
		return payload, "", nil
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}

		return bytes.NewReader(encoded), constants.MediaTypeJSON, nil
	}
}

// errorReason extracts a message from common JSON error envelopes, falling
// back to the status text.
func errorReason(statusCode int, body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		}
	}

	return http.StatusText(statusCode)
}

func redactHeaders(header http.Header) map[string]string {
	redacted := make(map[string]string, len(header))

	for key := range header {
		switch strings.ToLower(key) {
		case "authorization", "authority", "cookie", "x-api-key":
			redacted[key] = "[REDACTED]"
		default:
			redacted[key] = header.Get(key)
		}
	}

	return redacted
}

// leveledLogger adapts reqconf.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger reqconf.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fieldsOf(keysAndValues))
}

func fieldsOf(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return fields
}
