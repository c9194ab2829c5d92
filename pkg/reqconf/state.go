package reqconf

import (
	"maps"
	"net/http"
	"slices"
)

// Defaults is a partial configuration contributed ahead of local overrides,
// either by the Registry (global defaults) or by an Endpoint definition.
type Defaults struct {
	URLParams   []string          `json:"url_params,omitempty" yaml:"url_params,omitempty" mapstructure:"url_params"`
	QueryParams map[string]string `json:"query,omitempty"      yaml:"query,omitempty"      mapstructure:"query"`
	Headers     map[string]string `json:"headers,omitempty"    yaml:"headers,omitempty"    mapstructure:"headers"`
	Body        any               `json:"body,omitempty"       yaml:"body,omitempty"       mapstructure:"body"`
}

// IsZero reports whether d contributes nothing.
func (d Defaults) IsZero() bool {
	return len(d.URLParams) == 0 && len(d.QueryParams) == 0 && len(d.Headers) == 0 && d.Body == nil
}

// normalized returns a deep copy with canonical header keys.
func (d Defaults) normalized() Defaults {
	out := Defaults{
		URLParams:   slices.Clone(d.URLParams),
		QueryParams: maps.Clone(d.QueryParams),
		Body:        d.Body,
	}

	if d.Headers != nil {
		out.Headers = make(map[string]string, len(d.Headers))
		for key, value := range d.Headers {
			out.Headers[http.CanonicalHeaderKey(key)] = value
		}
	}

	return out
}

// configState is the pending configuration owned by exactly one RequestBuilder.
type configState struct {
	baseURL string
	method  string

	urlParams   []string
	queryParams map[string]string
	headers     map[string]string

	body    any
	bodySet bool

	// Locally removed keys/values; these also mask global defaults.
	removedURLParams map[string]struct{}
	removedQuery     map[string]struct{}
	removedHeaders   map[string]struct{}

	preCall  []preCallHook
	postCall []PostCallFunc

	executed bool
}

func newConfigState(method, baseURL string) *configState {
	return &configState{
		baseURL:          baseURL,
		method:           method,
		urlParams:        make([]string, 0),
		queryParams:      make(map[string]string),
		headers:          make(map[string]string),
		removedURLParams: make(map[string]struct{}),
		removedQuery:     make(map[string]struct{}),
		removedHeaders:   make(map[string]struct{}),
	}
}
