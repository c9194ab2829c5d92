package config_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/reqconf/internal/config"
	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

const sampleConfig = `
base_url: https://api.example.com
request_id: true
endpoints:
  - key: user.getDetails
    method: get
    path: [users]
    defaults:
      query:
        fields: all
  - key: user.update
    method: PATCH
    path: [users]
globals:
  - endpoint: "*"
    headers:
      Accept: application/json
  - endpoint: user.getDetails
    headers:
      Authority: token1
sources:
  - key: user
    base_url: https://users.internal
sources_file: /etc/reqconf/sources.yml
http:
  timeout: 5s
  retry_max: 2
rate_limit:
  requests_per_second: 10
  burst: 5
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), constants.ConfigFilePerm))

	return path
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewFileLoader(writeConfig(t, sampleConfig), nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.True(t, cfg.RequestID)
	assert.Equal(t, constants.FormatTable, cfg.Output)

	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, "user.getDetails", cfg.Endpoints[0].Key)
	assert.Equal(t, []string{"users"}, cfg.Endpoints[0].Path)
	assert.Equal(t, "all", cfg.Endpoints[0].Defaults.QueryParams["fields"])

	require.Len(t, cfg.Globals, 2)
	assert.Equal(t, reqconf.AllEndpoints, cfg.Globals[0].Endpoint)
	assert.Equal(t, "user.getDetails", cfg.Globals[1].Endpoint)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "user", cfg.Sources[0].Key)
	assert.Equal(t, "https://users.internal", cfg.Sources[0].BaseURL)
	assert.Equal(t, "/etc/reqconf/sources.yml", cfg.SourcesFile)

	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2, cfg.HTTP.RetryMax)
	assert.Equal(t, constants.DefaultRetryWaitMin, cfg.HTTP.RetryWaitMin)
	assert.Equal(t, constants.DefaultUserAgent, cfg.HTTP.UserAgent)
	assert.InDelta(t, 10.0, cfg.RateLimit.RequestsPerSecond, 0)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.False(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, constants.CircuitBreakerThreshold, cfg.CircuitBreaker.Threshold)
}

func TestLoader_EnvironmentOverride(t *testing.T) {
	t.Setenv("REQCONF_BASE_URL", "https://staging.example.com")
	t.Setenv("REQCONF_HTTP_RETRY_MAX", "7")

	cfg, err := config.NewFileLoader(writeConfig(t, sampleConfig), nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
	assert.Equal(t, 7, cfg.HTTP.RetryMax)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "endpoint without method",
			content: "endpoints:\n  - key: user.list\n",
			wantErr: constants.ErrEndpointMethodNeeded,
		},
		{
			name:    "endpoint without key",
			content: "endpoints:\n  - method: GET\n",
			wantErr: reqconf.ErrEndpointKeyRequired,
		},
		{
			name:    "globals without endpoint",
			content: "globals:\n  - headers:\n      Accept: text/plain\n",
			wantErr: reqconf.ErrEndpointKeyRequired,
		},
		{
			name:    "negative timeout",
			content: "http:\n  timeout: -1s\n",
			wantErr: constants.ErrInvalidDuration,
		},
		{
			name:    "NATS without bucket",
			content: "nats:\n  url: nats://127.0.0.1:4222\n",
			wantErr: constants.ErrNATSBucketRequired,
		},
	}

	for _, testCase := range tests {
		testCase := testCase

		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.NewFileLoader(writeConfig(t, testCase.content), nil).Load()
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.NewFileLoader(filepath.Join(t.TempDir(), "missing.yml"), nil).Load()
	require.Error(t, err)
}

func TestConfig_Apply(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewFileLoader(writeConfig(t, sampleConfig), nil).Load()
	require.NoError(t, err)

	var dispatched *reqconf.Config

	transport := reqconf.TransportFunc(func(_ context.Context, call *reqconf.Config) (*reqconf.Response, error) {
		dispatched = call

		return &reqconf.Response{StatusCode: http.StatusOK}, nil
	})

	client := reqconf.NewClient(nil, transport, reqconf.WithBaseURL(cfg.BaseURL))
	require.NoError(t, cfg.Apply(client))

	assert.True(t, client.Registry().Has(reqconf.AllEndpoints))
	assert.Len(t, client.Endpoints(), 2)

	_, err = client.Request(context.Background(), "user.getDetails", "42").Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/users/42?fields=all", dispatched.URL())
	assert.Equal(t, "token1", dispatched.HeaderValue("Authority"))
	assert.Equal(t, "application/json", dispatched.HeaderValue("Accept"))
}

func TestReload_ResetsDroppedGlobals(t *testing.T) {
	t.Parallel()

	loader := config.NewFileLoader(writeConfig(t, sampleConfig), nil)
	previous, err := loader.Load()
	require.NoError(t, err)

	client := reqconf.NewClient(nil, nil)
	require.NoError(t, previous.Apply(client))

	next := *previous
	next.Globals = previous.Globals[:1]

	require.NoError(t, config.Reload(client, previous, &next))

	defaults, ok := client.Registry().GlobalDefaults("user.getDetails")
	require.True(t, ok)
	assert.True(t, defaults.IsZero())

	wildcard, ok := client.Registry().GlobalDefaults(reqconf.AllEndpoints)
	require.True(t, ok)
	assert.Equal(t, "application/json", wildcard.Headers["Accept"])
}

func TestReload_UndefinesDroppedEndpoints(t *testing.T) {
	t.Parallel()

	previous, err := config.NewFileLoader(writeConfig(t, sampleConfig), nil).Load()
	require.NoError(t, err)

	client := reqconf.NewClient(nil, nil, reqconf.WithBaseURL(previous.BaseURL))
	require.NoError(t, previous.Apply(client))

	next := *previous
	next.Endpoints = previous.Endpoints[:1]

	require.NoError(t, config.Reload(client, previous, &next))

	_, ok := client.Endpoint("user.getDetails")
	assert.True(t, ok)

	_, ok = client.Endpoint("user.update")
	assert.False(t, ok)

	err = client.Request(context.Background(), "user.update", "1").Err()
	require.ErrorIs(t, err, reqconf.ErrEndpointNotDefined)
}

func TestLoader_Watch(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	loader := config.NewFileLoader(path, nil)

	_, err := loader.Load()
	require.NoError(t, err)

	changes := make(chan *config.Config, 16)
	loader.Watch(func(cfg *config.Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	updated := sampleConfig + "output: json\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), constants.ConfigFilePerm))

	deadline := time.After(5 * time.Second)

	for {
		select {
		case cfg := <-changes:
			// A truncating write can surface an intermediate revision first.
			if cfg.Output == constants.FormatJSON {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
