// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"net/http"
	"time"
)

// Policy is an explicit retry policy: how many attempts to make, how the
// backoff grows, and which outcomes are worth retrying.
type Policy struct {
	// MaxAttempts is the total number of attempts, first call included.
	MaxAttempts int

	// Base is the first backoff delay; it doubles each attempt.
	Base time.Duration

	// Cap bounds a single backoff delay.
	Cap time.Duration

	// Retryable decides whether an outcome should be retried. Exactly one
	// of resp and err is meaningful per call. Nil means RetryableDefault.
	Retryable func(resp *http.Response, err error) bool
}

// DefaultPolicy matches the catalog stage: 3 attempts, exponential backoff
// from 1s capped at 6s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Base: 1 * time.Second, Cap: 6 * time.Second}
}

// RetryableDefault retries transport errors, rate limiting, and server errors.
func RetryableDefault(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// Do executes req under the policy. Non-retryable responses are returned
// as-is, success or not; the caller owns status-code interpretation. On a
// retryable outcome the response body is closed before the backoff wait,
// and the last response (or error) is returned once attempts run out. A
// context cancellation during a wait returns ctx.Err().
func (p Policy) Do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = RetryableDefault
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		clone := req.Clone(ctx)
		// Clone shares the original body reader, which a previous attempt
		// has already drained. GetBody rewinds it for the resend.
		if attempt > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return resp, berr
			}
			clone.Body = body
		}
		resp, err = client.Do(clone)
		if !retryable(resp, err) {
			return resp, err
		}
		if resp != nil && attempt < attempts-1 {
			resp.Body.Close()
		}
	}
	return resp, err
}

// backoff returns Base doubled attempt times, capped at Cap.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}
