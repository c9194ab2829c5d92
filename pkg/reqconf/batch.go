package reqconf

import (
	"context"
	"sync"
	"time"

	"github.com/fivetwenty-io/reqconf/internal/constants"
)

// BatchResult represents the result of one builder executed in a batch.
type BatchResult struct {
	Index       int
	EndpointKey string
	Response    *Response
	Error       error
	Duration    time.Duration
}

// Success reports whether the call completed without error.
func (r BatchResult) Success() bool {
	return r.Error == nil
}

// ExecuteAll executes builders with at most concurrency calls in flight.
// Results are returned in input order. No ordering between calls is implied.
// A nil builder yields ErrNilBuilder. Builders still waiting for a slot when
// ctx ends are not executed and report ctx.Err().
func ExecuteAll(ctx context.Context, builders []*RequestBuilder, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrencyLimit
	}

	results := make([]BatchResult, len(builders))

	var waitGroup sync.WaitGroup

	semaphore := make(chan struct{}, concurrency)

	for index, builder := range builders {
		if builder == nil {
			results[index] = BatchResult{Index: index, Error: ErrNilBuilder}

			continue
		}

		waitGroup.Add(1)

		go func(index int, builder *RequestBuilder) {
			defer waitGroup.Done()

			if !acquire(ctx, semaphore) {
				results[index] = BatchResult{Index: index, EndpointKey: builder.EndpointKey(), Error: ctx.Err()}

				return
			}

			defer func() { <-semaphore }()

			start := time.Now()
			resp, err := builder.Execute(ctx)

			results[index] = BatchResult{
				Index:       index,
				EndpointKey: builder.EndpointKey(),
				Response:    resp,
				Error:       err,
				Duration:    time.Since(start),
			}
		}(index, builder)
	}

	waitGroup.Wait()

	return results
}

// acquire takes a slot unless ctx ends first. An ended ctx always wins.
func acquire(ctx context.Context, semaphore chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case semaphore <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}
