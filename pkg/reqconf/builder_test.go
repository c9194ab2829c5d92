package reqconf_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

func TestRequestBuilder_SingleUse(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(*reqconf.RequestBuilder) *reqconf.RequestBuilder{
		"AddURLParams":    func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder { return b.AddURLParams("x") },
		"RemoveURLParams": func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder { return b.RemoveURLParams("x") },
		"AddQueryParams": func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder {
			return b.AddQueryParams(map[string]string{"a": "b"})
		},
		"RemoveQueryParams": func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder { return b.RemoveQueryParams("a") },
		"AddHeaders": func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder {
			return b.AddHeaders(map[string]string{"X-A": "b"})
		},
		"RemoveHeaders": func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder { return b.RemoveHeaders("X-A") },
		"SetBody":       func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder { return b.SetBody("payload") },
		"AddInterceptor": func(b *reqconf.RequestBuilder) *reqconf.RequestBuilder {
			return b.AddInterceptor(reqconf.Interceptor{PreCall: func(context.Context, *reqconf.Config) error { return nil }})
		},
	}

	for name, mutate := range mutations {
		name, mutate := name, mutate

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			transport := newRecordingTransport()
			builder := newUserDetails(reqconf.NewRegistry(), transport)

			_, err := builder.Execute(context.Background())
			require.NoError(t, err)
			assert.True(t, builder.Executed())

			same := mutate(builder)
			assert.Same(t, builder, same)

			invalid := &reqconf.InvalidStateError{}
			require.ErrorAs(t, builder.Err(), &invalid)
			assert.Equal(t, name, invalid.Op)
			assert.True(t, reqconf.IsInvalidState(builder.Err()))

			// A second Execute is rejected and does not reach the transport.
			_, err = builder.Execute(context.Background())
			require.ErrorIs(t, err, reqconf.ErrInvalidState)
			_, err = builder.Execute(context.Background())
			require.ErrorIs(t, err, reqconf.ErrInvalidState)
			assert.Equal(t, 1, transport.Calls())
		})
	}
}

func TestRequestBuilder_SingleUseAfterAbort(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	builder := newUserDetails(reqconf.NewRegistry(), transport).
		AddInterceptor(reqconf.Interceptor{PreCall: func(context.Context, *reqconf.Config) error {
			return reqconf.Abort("nope")
		}})

	_, err := builder.Execute(context.Background())
	require.True(t, reqconf.IsAborted(err))

	builder.AddHeaders(map[string]string{"X-Retry": "1"})
	require.ErrorIs(t, builder.Err(), reqconf.ErrInvalidState)
	assert.Equal(t, 0, transport.Calls())
}

func TestRequestBuilder_LocalOverrideWins(t *testing.T) {
	t.Parallel()

	registry := reqconf.NewRegistry()
	require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
		Headers:     map[string]string{headerAuthority: "g", "X-Global": "kept"},
		QueryParams: map[string]string{"lang": "en", "fields": "all"},
	}))

	transport := newRecordingTransport()

	_, err := newUserDetails(registry, transport).
		AddHeaders(map[string]string{"authority": "l"}).
		AddQueryParams(map[string]string{"lang": "fr"}).
		Execute(context.Background())
	require.NoError(t, err)

	cfg := transport.Last()
	assert.Equal(t, "l", cfg.HeaderValue(headerAuthority))
	assert.Equal(t, []string{"l"}, cfg.Header().Values(headerAuthority))
	assert.Equal(t, "kept", cfg.HeaderValue("X-Global"))
	assert.Equal(t, "fr", cfg.Query().Get("lang"))
	assert.Equal(t, "all", cfg.Query().Get("fields"))
}

func TestRequestBuilder_RemovalWins(t *testing.T) {
	t.Parallel()

	registry := reqconf.NewRegistry()
	require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
		URLParams:   []string{"v1", "legacy"},
		Headers:     map[string]string{headerAuthority: "g"},
		QueryParams: map[string]string{"debug": "1"},
	}))

	transport := newRecordingTransport()

	_, err := newUserDetails(registry, transport).
		RemoveHeaders("AUTHORITY").
		RemoveQueryParams("debug").
		RemoveURLParams("legacy").
		Execute(context.Background())
	require.NoError(t, err)

	cfg := transport.Last()
	assert.False(t, cfg.HasHeader(headerAuthority))
	assert.Empty(t, cfg.Header().Values(headerAuthority))
	assert.False(t, cfg.Query().Has("debug"))
	assert.Equal(t, []string{"v1"}, cfg.URLParams())
}

func TestRequestBuilder_ReAddAfterRemove(t *testing.T) {
	t.Parallel()

	registry := reqconf.NewRegistry()
	require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
		Headers: map[string]string{headerAuthority: "g"},
	}))

	transport := newRecordingTransport()

	_, err := newUserDetails(registry, transport).
		RemoveHeaders(headerAuthority).
		AddHeaders(map[string]string{headerAuthority: "l"}).
		Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "l", transport.Last().HeaderValue(headerAuthority))
}

func TestRequestBuilder_URLParamOrdering(t *testing.T) {
	t.Parallel()

	registry := reqconf.NewRegistry()
	require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
		URLParams: []string{"A", "B"},
	}))

	transport := newRecordingTransport()

	_, err := newUserDetails(registry, transport).AddURLParams("C").Execute(context.Background())
	require.NoError(t, err)

	cfg := transport.Last()
	assert.Equal(t, []string{"A", "B", "C"}, cfg.URLParams())
	assert.Equal(t, testBaseURL+"/A/B/C", cfg.URL())
}

func TestRequestBuilder_RemoveURLParamsByValue(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()

	_, err := newUserDetails(nil, transport).
		AddURLParams("users", "42", "extra", "42").
		RemoveURLParams("42", "missing").
		Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "extra"}, transport.Last().URLParams())
}

func TestRequestBuilder_Body(t *testing.T) {
	t.Parallel()

	t.Run("global body used when local unset", func(t *testing.T) {
		t.Parallel()

		registry := reqconf.NewRegistry()
		require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{Body: "global"}))

		transport := newRecordingTransport()
		_, err := newUserDetails(registry, transport).Execute(context.Background())
		require.NoError(t, err)

		assert.True(t, transport.Last().HasBody())
		assert.Equal(t, "global", transport.Last().Body())
	})

	t.Run("local body replaces global", func(t *testing.T) {
		t.Parallel()

		registry := reqconf.NewRegistry()
		require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{Body: "global"}))

		transport := newRecordingTransport()
		_, err := newUserDetails(registry, transport).
			SetBody("first").
			SetBody(map[string]string{"name": "second"}).
			Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"name": "second"}, transport.Last().Body())
	})

	t.Run("explicit nil clears global", func(t *testing.T) {
		t.Parallel()

		registry := reqconf.NewRegistry()
		require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{Body: "global"}))

		transport := newRecordingTransport()
		_, err := newUserDetails(registry, transport).SetBody(nil).Execute(context.Background())
		require.NoError(t, err)

		assert.False(t, transport.Last().HasBody())
		assert.Nil(t, transport.Last().Body())
	})
}

func TestConfig_BodyIsCopied(t *testing.T) {
	t.Parallel()

	t.Run("byte slice", func(t *testing.T) {
		t.Parallel()

		transport := newRecordingTransport()
		_, err := newUserDetails(nil, transport).SetBody([]byte("payload")).Execute(context.Background())
		require.NoError(t, err)

		body, ok := transport.Last().Body().([]byte)
		require.True(t, ok)
		body[0] = 'X'

		assert.Equal(t, []byte("payload"), transport.Last().Body())
	})

	t.Run("nested map", func(t *testing.T) {
		t.Parallel()

		transport := newRecordingTransport()
		_, err := newUserDetails(nil, transport).
			SetBody(map[string]any{"name": "test-user", "tags": []any{"a"}, "meta": map[string]any{"level": 1}}).
			Execute(context.Background())
		require.NoError(t, err)

		body, ok := transport.Last().Body().(map[string]any)
		require.True(t, ok)
		body["name"] = "changed"
		body["tags"].([]any)[0] = "changed"
		body["meta"].(map[string]any)["level"] = 2

		assert.Equal(t, map[string]any{"name": "test-user", "tags": []any{"a"}, "meta": map[string]any{"level": 1}}, transport.Last().Body())
	})
}

func TestRequestBuilder_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("A: global default header is sent", func(t *testing.T) {
		t.Parallel()

		registry := reqconf.NewRegistry()
		require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
			Headers: map[string]string{headerAuthority: "token1"},
		}))

		transport := newRecordingTransport()
		_, err := newUserDetails(registry, transport).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "token1", transport.Last().HeaderValue(headerAuthority))
	})

	t.Run("B: local header overrides global", func(t *testing.T) {
		t.Parallel()

		registry := reqconf.NewRegistry()
		require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
			Headers: map[string]string{headerAuthority: "token1"},
		}))

		transport := newRecordingTransport()
		_, err := newUserDetails(registry, transport).
			AddHeaders(map[string]string{headerAuthority: "token2"}).
			Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "token2", transport.Last().HeaderValue(headerAuthority))
	})

	t.Run("C: global abort blocks the transport", func(t *testing.T) {
		t.Parallel()

		registry := reqconf.NewRegistry()
		require.NoError(t, registry.AddGlobalInterceptor(userDetailsKey, reqconf.Interceptor{
			PreCall: func(context.Context, *reqconf.Config) error { return reqconf.Abort("blocked") },
		}))

		transport := newRecordingTransport()
		resp, err := newUserDetails(registry, transport).Execute(context.Background())
		require.Error(t, err)
		assert.Nil(t, resp)

		aborted := &reqconf.CallAbortedError{}
		require.ErrorAs(t, err, &aborted)
		assert.Equal(t, "blocked", aborted.Reason)
		assert.Equal(t, "blocked", reqconf.AbortReason(err))
		assert.Equal(t, 0, transport.Calls())
	})

	t.Run("D: transport error reaches the caller unchanged", func(t *testing.T) {
		t.Parallel()

		timeout := &reqconf.TransportError{Reason: "timeout"}
		transport := newRecordingTransport()
		transport.resp = nil
		transport.err = timeout

		resp, err := newUserDetails(reqconf.NewRegistry(), transport).Execute(context.Background())
		assert.Nil(t, resp)
		assert.Same(t, timeout, err)
		assert.True(t, reqconf.IsTransportError(err))
	})
}

func TestRequestBuilder_WrapsForeignTransportErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	transport := reqconf.TransportFunc(func(context.Context, *reqconf.Config) (*reqconf.Response, error) {
		return nil, cause
	})

	_, err := newUserDetails(nil, transport).Execute(context.Background())

	transportErr := &reqconf.TransportError{}
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "connection reset", transportErr.Reason)
	require.ErrorIs(t, err, cause)
}

func TestRequestBuilder_NilResponse(t *testing.T) {
	t.Parallel()

	transport := reqconf.TransportFunc(func(context.Context, *reqconf.Config) (*reqconf.Response, error) {
		return nil, nil
	})

	_, err := newUserDetails(nil, transport).Execute(context.Background())
	require.ErrorIs(t, err, reqconf.ErrNilResponse)
	assert.True(t, reqconf.IsTransportError(err))
}

func TestRequestBuilder_CancellationSkipsPostCall(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	transport := reqconf.TransportFunc(func(ctx context.Context, _ *reqconf.Config) (*reqconf.Response, error) {
		cancel()
		<-ctx.Done()

		return nil, ctx.Err()
	})

	postCalls := 0

	_, err := newUserDetails(nil, transport).
		AddInterceptor(reqconf.Interceptor{PostCall: func(context.Context, *reqconf.Response, error, *reqconf.Config) (*reqconf.Response, error) {
			postCalls++

			return nil, nil
		}}).
		Execute(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, postCalls)
}

func TestRequestBuilder_ConstructionErrors(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()

	tests := []struct {
		name    string
		builder *reqconf.RequestBuilder
		wantErr error
	}{
		{"missing key", reqconf.NewRequestBuilder("", http.MethodGet, testBaseURL, transport), reqconf.ErrEndpointKeyRequired},
		{"missing method", reqconf.NewRequestBuilder(userDetailsKey, "", testBaseURL, transport), reqconf.ErrMethodRequired},
		{"missing base URL", reqconf.NewRequestBuilder(userDetailsKey, http.MethodGet, "", transport), reqconf.ErrBaseURLRequired},
		{"missing transport", reqconf.NewRequestBuilder(userDetailsKey, http.MethodGet, testBaseURL, nil), reqconf.ErrTransportRequired},
	}

	for _, testCase := range tests {
		testCase := testCase

		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, testCase.builder.Err(), testCase.wantErr)

			_, err := testCase.builder.Execute(context.Background())
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}

	assert.Equal(t, 0, transport.Calls())
}

func TestRequestBuilder_StickyMutationErrors(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()
	builder := newUserDetails(nil, transport).
		AddHeaders(map[string]string{"Bad Header": "x"}).
		AddHeaders(map[string]string{"X-Fine": "y"})

	require.ErrorIs(t, builder.Err(), reqconf.ErrInvalidHeaderName)

	_, err := builder.Execute(context.Background())
	require.ErrorIs(t, err, reqconf.ErrInvalidHeaderName)
	assert.Equal(t, 0, transport.Calls())

	empty := newUserDetails(nil, transport).AddInterceptor(reqconf.Interceptor{})
	require.ErrorIs(t, empty.Err(), reqconf.ErrEmptyInterceptor)

	query := newUserDetails(nil, transport).AddQueryParams(map[string]string{"": "x"})
	require.ErrorIs(t, query.Err(), reqconf.ErrInvalidQueryKey)
}

func TestRequestBuilder_Preview(t *testing.T) {
	t.Parallel()

	registry := reqconf.NewRegistry()
	require.NoError(t, registry.SetGlobalDefaults(userDetailsKey, reqconf.Defaults{
		URLParams:   []string{"v1"},
		QueryParams: map[string]string{"lang": "en"},
	}))

	transport := newRecordingTransport()
	builder := newUserDetails(registry, transport).AddURLParams("users", "a b")

	cfg, err := builder.Preview()
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/v1/users/a%20b?lang=en", cfg.URL())
	assert.Equal(t, http.MethodGet, cfg.Method())
	assert.Equal(t, userDetailsKey, cfg.EndpointKey())
	assert.False(t, builder.Executed())
	assert.Equal(t, 0, transport.Calls())

	_, err = builder.Execute(context.Background())
	require.NoError(t, err)

	_, err = builder.Preview()
	require.ErrorIs(t, err, reqconf.ErrInvalidState)
}

func TestRequestBuilder_ConfigAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport()

	_, err := newUserDetails(nil, transport).
		AddURLParams("users").
		AddHeaders(map[string]string{"X-Trace": "1"}).
		AddQueryParams(map[string]string{"q": "1"}).
		Execute(context.Background())
	require.NoError(t, err)

	cfg := transport.Last()

	cfg.Header().Set("X-Trace", "mutated")
	cfg.Query().Set("q", "mutated")
	params := cfg.URLParams()
	params[0] = "mutated"

	assert.Equal(t, "1", cfg.HeaderValue("X-Trace"))
	assert.Equal(t, "1", cfg.Query().Get("q"))
	assert.Equal(t, []string{"users"}, cfg.URLParams())
}

func TestRequestBuilder_LateRegistrationAffectsLaterCallsOnly(t *testing.T) {
	t.Parallel()

	registry := reqconf.NewRegistry()
	release := make(chan struct{})
	dispatched := make(chan struct{})

	slow := reqconf.TransportFunc(func(ctx context.Context, cfg *reqconf.Config) (*reqconf.Response, error) {
		close(dispatched)
		<-release

		return &reqconf.Response{StatusCode: http.StatusOK}, nil
	})

	first := newUserDetails(registry, slow)
	done := make(chan *reqconf.Response, 1)

	go func() {
		resp, _ := first.Execute(context.Background())
		done <- resp
	}()

	<-dispatched

	require.NoError(t, registry.AddGlobalInterceptor(userDetailsKey, reqconf.Interceptor{
		PostCall: func(ctx context.Context, resp *reqconf.Response, err error, cfg *reqconf.Config) (*reqconf.Response, error) {
			out := resp.Clone()
			out.Value = "late"

			return out, nil
		},
	}))

	close(release)

	select {
	case resp := <-done:
		require.NotNil(t, resp)
		assert.Nil(t, resp.Value)
	case <-time.After(time.Second):
		t.Fatal("first call did not complete")
	}

	transport := newRecordingTransport()
	resp, err := newUserDetails(registry, transport).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", resp.Value)
}

func TestRequestBuilder_LogsDispatch(t *testing.T) {
	t.Parallel()

	logger := &MockLogger{}
	transport := newRecordingTransport()

	builder := reqconf.NewRequestBuilder(userDetailsKey, http.MethodGet, testBaseURL, transport,
		reqconf.WithBuilderLogger(logger))

	_, err := builder.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Dispatching call"}, logger.Messages())
}
