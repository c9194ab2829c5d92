// Package datasource resolves the base URL and transport each endpoint key
// is dispatched to.
package datasource

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// candidates lists the lookup keys for endpointKey, most specific first:
// "user.profile.get" yields "user.profile.get", "user.profile", "user".
func candidates(endpointKey string) []string {
	keys := []string{endpointKey}

	for index := strings.LastIndex(endpointKey, "."); index > 0; index = strings.LastIndex(endpointKey, ".") {
		endpointKey = endpointKey[:index]
		keys = append(keys, endpointKey)
	}

	return keys
}

// StaticResolver resolves sources from an in-memory table keyed by endpoint
// key or key prefix. The AllEndpoints key matches anything.
type StaticResolver struct {
	mu      sync.RWMutex
	sources map[string]reqconf.Source
}

// NewStaticResolver creates a resolver over a copy of sources.
func NewStaticResolver(sources map[string]reqconf.Source) *StaticResolver {
	resolver := &StaticResolver{
		sources: make(map[string]reqconf.Source, len(sources)),
	}

	for key, source := range sources {
		resolver.sources[key] = source
	}

	return resolver
}

// Entry maps an endpoint key, or a dotted prefix of one, to a base URL.
type Entry struct {
	Key     string `json:"key"      yaml:"key"      mapstructure:"key"`
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
}

// NewStaticResolverFromURLs creates a resolver from key to base URL pairs.
func NewStaticResolverFromURLs(baseURLs map[string]string) *StaticResolver {
	sources := make(map[string]reqconf.Source, len(baseURLs))
	for key, baseURL := range baseURLs {
		sources[key] = reqconf.Source{BaseURL: baseURL}
	}

	return NewStaticResolver(sources)
}

// NewStaticResolverFromEntries validates entries and creates a resolver from them.
func NewStaticResolverFromEntries(entries []Entry) (*StaticResolver, error) {
	baseURLs := make(map[string]string, len(entries))

	for _, entry := range entries {
		if entry.Key == "" {
			return nil, reqconf.ErrEndpointKeyRequired
		}

		if strings.TrimSpace(entry.BaseURL) == "" {
			return nil, fmt.Errorf("%w: %s", constants.ErrEmptySourceValue, entry.Key)
		}

		baseURLs[entry.Key] = strings.TrimSpace(entry.BaseURL)
	}

	return NewStaticResolverFromURLs(baseURLs), nil
}

// LoadStaticResolver reads a YAML file holding a "sources" list of entries.
func LoadStaticResolver(path string) (*StaticResolver, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file struct {
		Sources []Entry `yaml:"sources"`
	}

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	return NewStaticResolverFromEntries(file.Sources)
}

// Set adds or replaces the source for key.
func (r *StaticResolver) Set(key string, source reqconf.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources[key] = source
}

// Resolve implements reqconf.Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, endpointKey string) (reqconf.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range append(candidates(endpointKey), reqconf.AllEndpoints) {
		if source, ok := r.sources[key]; ok {
			return source, nil
		}
	}

	return reqconf.Source{}, fmt.Errorf("%w: %s", reqconf.ErrSourceNotFound, endpointKey)
}
