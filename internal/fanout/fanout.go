// Package fanout runs independent external calls with bounded concurrency
// and applies a per-call timeout, retry and rate limit policy.
package fanout

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"itinerary-router/internal/metrics"
)

// Policy describes how a single external call is attempted
type Policy struct {
	// Service labels the collaborator in metrics
	Service string
	// Timeout bounds each attempt; zero means only the parent context applies
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure (0 or 1 in practice)
	Retries int
	// Backoff is the pause before a retry
	Backoff time.Duration
	// Limiter throttles attempts; nil disables throttling
	Limiter *rate.Limiter
}

// NewLimiter returns a limiter allowing perSecond calls with a burst of one,
// or nil when perSecond is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn under the policy. The parent context is never extended: once it
// is done no further attempt is made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			if p.Backoff > 0 {
				timer := time.NewTimer(p.Backoff)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return err
				}
			}
		}

		if p.Limiter != nil {
			if werr := p.Limiter.Wait(ctx); werr != nil {
				if err != nil {
					return err
				}
				return werr
			}
		}

		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return err
		}
	}
	return err
}

func (p Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)

	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
		outcome = metrics.OutcomeTimeout
	default:
		outcome = metrics.OutcomeFailure
	}
	metrics.ObserveCall(p.serviceName(), outcome, time.Since(start))
	return err
}

func (p Policy) serviceName() string {
	if p.Service == "" {
		return "unknown"
	}
	return p.Service
}

// Run calls task(ctx, i) for i in [0, n) with at most limit tasks in flight.
// Tasks own slot i of whatever result slice the caller prepared and must not
// touch other slots. Tasks not yet started when ctx is done are skipped; Run
// returns ctx.Err() in that case so callers can report partial results.
func Run(ctx context.Context, n, limit int, task func(ctx context.Context, i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			task(gctx, i)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}
