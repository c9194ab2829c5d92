package reqconf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fivetwenty-io/reqconf/internal/constants"
)

// PreCallFunc runs before dispatch against the merged configuration.
// Return Abort(reason) to veto the call; any other error is a hook failure.
type PreCallFunc func(ctx context.Context, cfg *Config) error

// PostCallFunc runs after the transport settled. resp and err are the
// outcome so far; resp may be non-nil alongside err (e.g. a non-2xx response).
//
// Return (nil, nil) to leave the outcome unchanged, a different response
// with a nil error to replace it with a success, or an error wrapping err to
// transform the failure. Returning the incoming resp unchanged with a nil
// error only observes: a failure stays a failure. Any other error is a hook
// failure and ends the chain.
type PostCallFunc func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error)

// AbandonFunc releases what a PreCall acquired when the call settles without
// running post-call hooks: a later pre-call hook aborted or failed, or the
// context ended while the transport failed. err is the final error.
type AbandonFunc func(ctx context.Context, cfg *Config, err error)

// Interceptor pairs optional pre-call and post-call hooks registered together.
// Abandon is only called for calls its PreCall admitted.
type Interceptor struct {
	PreCall  PreCallFunc
	PostCall PostCallFunc
	Abandon  AbandonFunc
}

// IsEmpty reports whether neither hook is set.
func (i Interceptor) IsEmpty() bool {
	return i.PreCall == nil && i.PostCall == nil
}

// preCallHook is a pre-call hook with its optional release hook.
type preCallHook struct {
	fn      PreCallFunc
	abandon AbandonFunc
}

type scopedPreCall struct {
	scope   Scope
	fn      PreCallFunc
	abandon AbandonFunc
}

type scopedPostCall struct {
	scope Scope
	fn    PostCallFunc
}

// InterceptorChain holds the ordered hooks for one execution.
type InterceptorChain struct {
	preCall  []scopedPreCall
	postCall []scopedPostCall
}

// NewInterceptorChain creates a new interceptor chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{
		preCall:  make([]scopedPreCall, 0),
		postCall: make([]scopedPostCall, 0),
	}
}

// AddPreCall appends a pre-call hook.
func (c *InterceptorChain) AddPreCall(scope Scope, fn PreCallFunc) {
	c.AddPreCallWithAbandon(scope, fn, nil)
}

// AddPreCallWithAbandon appends a pre-call hook whose admission is released
// by abandon when post-call hooks do not run.
func (c *InterceptorChain) AddPreCallWithAbandon(scope Scope, fn PreCallFunc, abandon AbandonFunc) {
	c.preCall = append(c.preCall, scopedPreCall{scope: scope, fn: fn, abandon: abandon})
}

// AddPostCall appends a post-call hook.
func (c *InterceptorChain) AddPostCall(scope Scope, fn PostCallFunc) {
	c.postCall = append(c.postCall, scopedPostCall{scope: scope, fn: fn})
}

// Len returns the number of pre-call and post-call hooks.
func (c *InterceptorChain) Len() (int, int) {
	return len(c.preCall), len(c.postCall)
}

// ExecutePreCall runs pre-call hooks in order. The first abort or failure
// stops the chain and abandons the hooks that already admitted the call.
func (c *InterceptorChain) ExecutePreCall(ctx context.Context, cfg *Config) error {
	for index, hook := range c.preCall {
		err := hook.fn(ctx, cfg)
		if err == nil {
			continue
		}

		abortErr := &CallAbortedError{}
		if errors.As(err, &abortErr) {
			err = abortErr
		} else {
			err = &HookError{Phase: PhasePreCall, Scope: hook.scope, Index: index, Err: err}
		}

		c.abandon(ctx, cfg, index, err)

		return err
	}

	return nil
}

// Abandon releases every admitted pre-call hook, latest first. It is used
// when the call settles without running the post-call chain.
func (c *InterceptorChain) Abandon(ctx context.Context, cfg *Config, err error) {
	c.abandon(ctx, cfg, len(c.preCall), err)
}

// abandon releases the hooks before index, latest first.
func (c *InterceptorChain) abandon(ctx context.Context, cfg *Config, index int, err error) {
	for i := index - 1; i >= 0; i-- {
		if c.preCall[i].abandon != nil {
			c.preCall[i].abandon(ctx, cfg, err)
		}
	}
}

// ExecutePostCall threads the settled outcome through the post-call hooks.
func (c *InterceptorChain) ExecutePostCall(ctx context.Context, cfg *Config, resp *Response, err error) (*Response, error) {
	for index, hook := range c.postCall {
		out, hookErr := hook.fn(ctx, resp, err, cfg)

		switch {
		case hookErr == nil && out == nil:
			// Observer only.
		case hookErr == nil && err != nil && out == resp:
			// Passing the failed response through does not recover it.
		case hookErr == nil:
			resp, err = out, nil
		case err != nil && errors.Is(hookErr, err):
			if out != nil {
				resp = out
			}

			err = hookErr
		default:
			return nil, &HookError{Phase: PhasePostCall, Scope: hook.scope, Index: index, Err: hookErr}
		}
	}

	return resp, err
}

// Common Interceptors

// LoggingInterceptor logs requests before dispatch and their outcome after.
func LoggingInterceptor(logger Logger) Interceptor {
	return Interceptor{
		PreCall: func(ctx context.Context, cfg *Config) error {
			logger.Debug("API Request", map[string]interface{}{
				"endpoint": cfg.EndpointKey(),
				"method":   cfg.Method(),
				"url":      cfg.URL(),
			})

			return nil
		},
		PostCall: func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error) {
			fields := map[string]interface{}{
				"endpoint": cfg.EndpointKey(),
				"method":   cfg.Method(),
				"url":      cfg.URL(),
			}

			if resp != nil {
				fields["status_code"] = resp.StatusCode
			}

			if err != nil {
				fields["error"] = err.Error()
				logger.Error("API Response Error", fields)
			} else {
				logger.Debug("API Response", fields)
			}

			return nil, nil
		},
	}
}

// RequireHeadersInterceptor aborts calls missing any of the given headers.
func RequireHeadersInterceptor(keys ...string) PreCallFunc {
	return func(ctx context.Context, cfg *Config) error {
		for _, key := range keys {
			if !cfg.HasHeader(key) {
				return Abort(fmt.Sprintf("missing required header %q", key))
			}
		}

		return nil
	}
}

// RateLimitInterceptor waits for a token from limiter before each call. The
// call is aborted when the context ends or cannot accommodate the wait.
func RateLimitInterceptor(limiter *rate.Limiter) PreCallFunc {
	return func(ctx context.Context, cfg *Config) error {
		err := limiter.Wait(ctx)
		if err != nil {
			return Abort(fmt.Sprintf("rate limit: %v", err))
		}

		return nil
	}
}

// DecodeJSONInterceptor decodes successful response bodies into a fresh
// value from newTarget and stores it in Response.Value. A decode failure
// turns the success into a failure.
func DecodeJSONInterceptor(newTarget func() any) PostCallFunc {
	return func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error) {
		if err != nil || resp == nil || len(resp.Body) == 0 {
			return nil, nil
		}

		target := newTarget()

		decodeErr := json.Unmarshal(resp.Body, target)
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding %s response: %w", cfg.EndpointKey(), decodeErr)
		}

		out := resp.Clone()
		out.Value = target

		return out, nil
	}
}

// RecoverInterceptor lets fallback produce a replacement for a failed call.
// When fallback reports false the failure continues down the chain.
func RecoverInterceptor(fallback func(err error) (*Response, bool)) PostCallFunc {
	return func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error) {
		if err == nil {
			return nil, nil
		}

		recovered, ok := fallback(err)
		if !ok || recovered == nil {
			return nil, nil
		}

		return recovered, nil
	}
}

// Metrics holds call statistics for one endpoint key.
type Metrics struct {
	TotalRequests   int64
	TotalErrors     int64
	TotalLatency    time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time
}

// MetricsCollector collects per-endpoint call metrics. It is safe for
// concurrent use.
type MetricsCollector struct {
	mu       sync.Mutex
	metrics  map[string]*Metrics
	started  sync.Map // *Config -> time.Time
	onChange func(endpoint string, metrics Metrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: make(map[string]*Metrics),
	}
}

// SetOnChange sets a callback for when metrics change.
func (m *MetricsCollector) SetOnChange(fn func(endpoint string, metrics Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onChange = fn
}

// GetMetrics returns a copy of the metrics for an endpoint key.
func (m *MetricsCollector) GetMetrics(endpoint string) (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, ok := m.metrics[endpoint]
	if !ok {
		return Metrics{}, false
	}

	return *metrics, true
}

// InFlight returns the number of admitted calls not yet recorded or abandoned.
func (m *MetricsCollector) InFlight() int {
	count := 0

	m.started.Range(func(_, _ any) bool {
		count++

		return true
	})

	return count
}

// Interceptor returns the hooks that feed the collector.
func (m *MetricsCollector) Interceptor() Interceptor {
	return Interceptor{
		PreCall: func(ctx context.Context, cfg *Config) error {
			m.started.Store(cfg, time.Now())

			return nil
		},
		PostCall: func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error) {
			m.record(cfg, resp, err)

			return nil, nil
		},
		Abandon: func(ctx context.Context, cfg *Config, err error) {
			m.started.Delete(cfg)
		},
	}
}

func (m *MetricsCollector) record(cfg *Config, resp *Response, err error) {
	m.mu.Lock()

	metrics, ok := m.metrics[cfg.EndpointKey()]
	if !ok {
		metrics = &Metrics{}
		m.metrics[cfg.EndpointKey()] = metrics
	}

	metrics.TotalRequests++
	metrics.LastRequestTime = time.Now()

	if startTime, ok := m.started.LoadAndDelete(cfg); ok {
		metrics.TotalLatency += time.Since(startTime.(time.Time))
		metrics.AverageLatency = metrics.TotalLatency / time.Duration(metrics.TotalRequests)
	}

	if err != nil || (resp != nil && resp.StatusCode >= 400) {
		metrics.TotalErrors++
	}

	snapshot := *metrics
	onChange := m.onChange

	m.mu.Unlock()

	if onChange != nil {
		onChange(cfg.EndpointKey(), snapshot)
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Threshold        int           // Number of failures before opening
	Timeout          time.Duration // Time before trying again
	SuccessThreshold int           // Number of successes to close
}

// CircuitBreaker tracks circuit state across calls. It is safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      *CircuitBreakerConfig
	failures    int
	successes   int
	state       string
	lastFailure time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = &CircuitBreakerConfig{
			Threshold:        constants.CircuitBreakerThreshold,
			Timeout:          constants.CircuitBreakerTimeout,
			SuccessThreshold: constants.CircuitBreakerSuccessThreshold,
		}
	}

	return &CircuitBreaker{
		config: config,
		state:  constants.StatusClosed,
	}
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Interceptor returns the admission check and the outcome recorder.
func (b *CircuitBreaker) Interceptor() Interceptor {
	return Interceptor{
		PreCall: func(ctx context.Context, cfg *Config) error {
			b.mu.Lock()
			defer b.mu.Unlock()

			if b.state == constants.StatusOpen {
				if time.Since(b.lastFailure) <= b.config.Timeout {
					return Abort(ErrCircuitBreakerOpen.Error())
				}

				b.state = constants.StatusHalfOpen
				b.successes = 0
			}

			return nil
		},
		PostCall: func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error) {
			b.record(err != nil || (resp != nil && resp.StatusCode >= 500))

			return nil, nil
		},
	}
}

func (b *CircuitBreaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if failed {
		b.failures++
		b.lastFailure = time.Now()

		if b.failures >= b.config.Threshold || b.state == constants.StatusHalfOpen {
			b.state = constants.StatusOpen
		}

		return
	}

	switch b.state {
	case constants.StatusHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = constants.StatusClosed
			b.failures = 0
		}
	case constants.StatusClosed:
		b.failures = 0
	}
}
