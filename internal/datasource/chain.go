package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// ChainResolver consults resolvers in order (for example a NATS bucket
// backed by a static table) and returns the first source found.
type ChainResolver struct {
	resolvers []reqconf.Resolver
}

// NewChainResolver creates a new resolver chain.
func NewChainResolver(resolvers ...reqconf.Resolver) *ChainResolver {
	return &ChainResolver{
		resolvers: resolvers,
	}
}

// Resolve implements reqconf.Resolver. A resolver that fails for any reason
// other than a missing source ends the lookup.
func (c *ChainResolver) Resolve(ctx context.Context, endpointKey string) (reqconf.Source, error) {
	for index, resolver := range c.resolvers {
		source, err := resolver.Resolve(ctx, endpointKey)
		if err == nil {
			return source, nil
		}

		if !errors.Is(err, reqconf.ErrSourceNotFound) {
			return reqconf.Source{}, fmt.Errorf("data source %d: %w", index, err)
		}
	}

	return reqconf.Source{}, fmt.Errorf("%w: %s", reqconf.ErrSourceNotFound, endpointKey)
}
