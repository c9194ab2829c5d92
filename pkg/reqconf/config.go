package reqconf

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Config is the merged, read-only configuration of one call. It is what
// pre-call and post-call interceptors observe and what the Transport receives.
// Accessors return copies; a Config never changes after it is built.
type Config struct {
	endpointKey string
	method      string
	baseURL     string
	urlParams   []string
	query       url.Values
	header      http.Header
	body        any
	hasBody     bool
}

// EndpointKey returns the endpoint identity the call was built for.
func (c *Config) EndpointKey() string {
	return c.endpointKey
}

// Method returns the HTTP method.
func (c *Config) Method() string {
	return c.method
}

// BaseURL returns the base URL set at construction.
func (c *Config) BaseURL() string {
	return c.baseURL
}

// URLParams returns the ordered path segments.
func (c *Config) URLParams() []string {
	return slices.Clone(c.urlParams)
}

// Query returns the merged query parameters.
func (c *Config) Query() url.Values {
	out := make(url.Values, len(c.query))
	for key, values := range c.query {
		out[key] = slices.Clone(values)
	}

	return out
}

// Header returns the merged headers.
func (c *Config) Header() http.Header {
	return c.header.Clone()
}

// HeaderValue returns a single header value, matched case-insensitively.
func (c *Config) HeaderValue(key string) string {
	return c.header.Get(key)
}

// HasHeader reports whether the merged configuration carries key.
func (c *Config) HasHeader(key string) bool {
	_, ok := c.header[http.CanonicalHeaderKey(key)]

	return ok
}

// Body returns the payload, or nil when none was set. Byte slices and JSON
// style maps and slices are copied; other values, pointers in particular,
// are shared with the Config and must be treated as read-only.
func (c *Config) Body() any {
	return cloneBody(c.body)
}

func cloneBody(body any) any {
	switch value := body.(type) {
	case []byte:
		return slices.Clone(value)
	case map[string]any:
		if value == nil {
			return value
		}

		out := make(map[string]any, len(value))
		for key, item := range value {
			out[key] = cloneBody(item)
		}

		return out
	case []any:
		if value == nil {
			return value
		}

		out := make([]any, len(value))
		for index, item := range value {
			out[index] = cloneBody(item)
		}

		return out
	case map[string]string:
		if value == nil {
			return value
		}

		out := make(map[string]string, len(value))
		for key, item := range value {
			out[key] = item
		}

		return out
	default:
		return body
	}
}

// HasBody reports whether a body was set locally or by defaults.
func (c *Config) HasBody() bool {
	return c.hasBody
}

// Path returns the url params joined as an escaped path, with a leading slash.
func (c *Config) Path() string {
	if len(c.urlParams) == 0 {
		return ""
	}

	segments := make([]string, 0, len(c.urlParams))
	for _, param := range c.urlParams {
		segments = append(segments, url.PathEscape(param))
	}

	return "/" + strings.Join(segments, "/")
}

// URL renders base URL, path segments and encoded query.
func (c *Config) URL() string {
	rendered := strings.TrimSuffix(c.baseURL, "/") + c.Path()
	if len(c.query) > 0 {
		rendered += "?" + c.query.Encode()
	}

	return rendered
}
