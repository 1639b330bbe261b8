// Package worker provides a bounded-concurrency task pool with per-task retry.
// It is a pure fan-out/fan-in mechanism: results surface in completion order
// and carry their errors instead of failing the whole run.
package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	// Workers bounds the number of tasks in flight at any instant.
	Workers int

	// MaxAttempts is the total attempt budget per task, including the first.
	MaxAttempts int

	// RequestTimeout bounds each individual attempt.
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	// Retryable decides whether a failed attempt gets another one. A nil
	// predicate retries everything. The last error is returned once the
	// attempt budget is exhausted.
	Retryable func(error) bool

	// BackoffBase seeds the exponential delay curve: the sleep before attempt
	// n (n>=2) is BackoffBase * 2^(n-2), clamped into [BackoffMin, BackoffMax].
	BackoffBase time.Duration
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffMin < 0 {
		o.BackoffMin = 0
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 60 * time.Second
	}
	return o
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

// ProcessAll runs the processor over all input items and returns results
// indexed by input position.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items and invokes
// onResult as each item completes, in completion order. An onResult error is
// fatal: it cancels the run and is returned to the caller.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}
	type completion struct {
		idx int
		res Result[In, Out]
	}

	jobs := make(chan job)
	done := make(chan completion, opts.Workers)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			output, err := Retry(runCtx, func(attemptCtx context.Context) (Out, error) {
				if limiter != nil {
					if lerr := limiter.Wait(attemptCtx); lerr != nil {
						var zero Out
						return zero, lerr
					}
				}
				return processor(attemptCtx, j.in)
			}, opts)
			res := Result[In, Out]{Input: j.in, Output: output, Err: err}
			select {
			case done <- completion{idx: j.idx, res: res}:
			case <-runCtx.Done():
				return
			}
		}
	}

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	for item := range done {
		out[item.idx] = item.res
		if onResult != nil {
			if err := onResult(item.res); err != nil {
				fail(err)
			}
		}
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// Retry invokes fn up to opts.MaxAttempts times. Each attempt runs under its
// own timeout; the sleep before attempt n is BackoffBase * 2^(n-2) clamped
// into [BackoffMin, BackoffMax]. The opts.Retryable predicate decides which
// failures earn another attempt; the last error is returned on exhaustion.
func Retry[Out any](
	ctx context.Context,
	fn func(context.Context) (Out, error),
	opts Options,
) (Out, error) {
	opts = opts.withDefaults()

	var lastOut Out
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastOut, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		result, err := fn(attemptCtx)
		cancel()
		lastOut = result
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lastOut, ctx.Err()
		}
		if attempt >= opts.MaxAttempts {
			return lastOut, err
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return lastOut, err
		}

		t := time.NewTimer(backoffSleep(opts, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastOut, ctx.Err()
		}
	}
}

// backoffSleep returns the delay after the given failed attempt (1-based).
func backoffSleep(opts Options, attempt int) time.Duration {
	sleep := opts.BackoffBase
	for i := 1; i < attempt && sleep < opts.BackoffMax; i++ {
		sleep *= 2
	}
	if sleep > opts.BackoffMax {
		sleep = opts.BackoffMax
	}
	if sleep < opts.BackoffMin {
		sleep = opts.BackoffMin
	}
	if opts.BackoffJitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*opts.BackoffJitterFrac
	return time.Duration(float64(sleep) * j)
}
