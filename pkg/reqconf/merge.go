package reqconf

import (
	"net/http"
	"net/url"
)

// mergeConfig combines global defaults (in registry order: wildcard entry,
// then the endpoint entry) with the builder's local state.
//
// Local values win on key conflicts, global url params form the prefix of
// the path, and anything removed locally is dropped from the global side.
func mergeConfig(endpointKey string, globals []Defaults, local *configState) *Config {
	cfg := &Config{
		endpointKey: endpointKey,
		method:      local.method,
		baseURL:     local.baseURL,
		urlParams:   make([]string, 0, len(local.urlParams)),
		query:       make(url.Values),
		header:      make(http.Header),
	}

	for _, defaults := range globals {
		for _, param := range defaults.URLParams {
			if _, removed := local.removedURLParams[param]; removed {
				continue
			}

			cfg.urlParams = append(cfg.urlParams, param)
		}

		for key, value := range defaults.QueryParams {
			if _, removed := local.removedQuery[key]; removed {
				continue
			}

			cfg.query.Set(key, value)
		}

		for key, value := range defaults.Headers {
			if _, removed := local.removedHeaders[http.CanonicalHeaderKey(key)]; removed {
				continue
			}

			cfg.header.Set(key, value)
		}

		if defaults.Body != nil {
			cfg.body = defaults.Body
			cfg.hasBody = true
		}
	}

	cfg.urlParams = append(cfg.urlParams, local.urlParams...)

	for key, value := range local.queryParams {
		cfg.query.Set(key, value)
	}

	for key, value := range local.headers {
		cfg.header.Set(key, value)
	}

	if local.bodySet {
		cfg.body = local.body
		cfg.hasBody = local.body != nil
	}

	return cfg
}
