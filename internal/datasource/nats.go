package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// KeyValueGetter is the part of jetstream.KeyValue the resolver reads from.
type KeyValueGetter interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
}

// NATSResolver resolves base URLs stored in a JetStream key-value bucket.
// Each entry maps an endpoint key, or a dotted prefix of one, to a base URL.
// Updates to the bucket take effect on the next Request.
type NATSResolver struct {
	kv        KeyValueGetter
	transport reqconf.Transport
	conn      *nats.Conn
}

// NewNATSResolver creates a resolver over an opened bucket. transport may be
// nil to keep the client's default.
func NewNATSResolver(kv KeyValueGetter, transport reqconf.Transport) *NATSResolver {
	return &NATSResolver{
		kv:        kv,
		transport: transport,
	}
}

// DialNATSResolver connects to url and opens bucket.
func DialNATSResolver(ctx context.Context, url, bucket string, transport reqconf.Transport, opts ...nats.Option) (*NATSResolver, error) {
	if url == "" {
		return nil, constants.ErrNATSURLRequired
	}

	if bucket == "" {
		return nil, constants.ErrNATSBucketRequired
	}

	opts = append([]nats.Option{nats.Timeout(constants.DataSourceDialTimeout)}, opts...)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to open key-value bucket %s: %w", bucket, err)
	}

	resolver := NewNATSResolver(kv, transport)
	resolver.conn = conn

	return resolver, nil
}

// Resolve implements reqconf.Resolver.
func (r *NATSResolver) Resolve(ctx context.Context, endpointKey string) (reqconf.Source, error) {
	for _, key := range candidates(endpointKey) {
		entry, err := r.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}

		if err != nil {
			return reqconf.Source{}, fmt.Errorf("failed to read data source %s: %w", key, err)
		}

		baseURL := strings.TrimSpace(string(entry.Value()))
		if baseURL == "" {
			return reqconf.Source{}, fmt.Errorf("%w: %s", constants.ErrEmptySourceValue, key)
		}

		return reqconf.Source{BaseURL: baseURL, Transport: r.transport}, nil
	}

	return reqconf.Source{}, fmt.Errorf("%w: %s", reqconf.ErrSourceNotFound, endpointKey)
}

// Close drains the connection opened by DialNATSResolver.
func (r *NATSResolver) Close() error {
	if r.conn == nil {
		return nil
	}

	err := r.conn.Drain()
	if err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}
