package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
)

const (
	// maxAttempts is the total number of tries per request target,
	// including the first one.
	maxAttempts = 20
	// defaultRetrySleep covers transient failures unrelated to quota.
	defaultRetrySleep = 5 * time.Second
	// minRateRemaining is the quota floor below which we stop retrying
	// quickly and instead wait for the quota window to reset.
	minRateRemaining = 10
)

// retryPolicy decides how long to wait between attempts and how many
// attempts are permitted. The clock and sleep functions are injectable so
// tests run without real delay.
type retryPolicy struct {
	maxAttempts  int
	defaultSleep time.Duration
	minRemaining int
	now          func() time.Time
	sleep        func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:  maxAttempts,
		defaultSleep: defaultRetrySleep,
		minRemaining: minRateRemaining,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// delay computes the sleep before the next retry from the failed response's
// rate-limit headers. The headers must be re-read on every attempt because
// the remaining quota changes between attempts. When the quota is nearly
// exhausted the only useful wait is until the reset timestamp, which can be
// tens of minutes away.
func (p retryPolicy) delay(rate github.Rate) time.Duration {
	if rate.Limit > 0 && rate.Remaining < p.minRemaining {
		wait := rate.Reset.Time.Sub(p.now()).Truncate(time.Second)
		if wait < 0 {
			// Reset already passed between the response and now.
			wait = 0
		}
		return wait
	}
	return p.defaultSleep
}

// withRetry runs one API call until it succeeds or the attempt ceiling is
// reached, sleeping between attempts per the retry policy. Malformed response
// bodies are a contract violation and fail immediately. The exhaustion error
// names the request and the distinct status codes observed.
func (g *Gateway) withRetry(ctx context.Context, desc string, call func() (*github.Response, error)) error {
	seen := make(map[int]struct{})
	for attempt := 1; ; attempt++ {
		resp, err := call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isDecodeError(err) {
			return fmt.Errorf("%s: malformed response body: %w", desc, err)
		}

		status, rate := responseMeta(resp, err)
		seen[status] = struct{}{}
		if attempt >= g.retry.maxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts (status codes: %s)", desc, attempt, statusCodeList(seen))
		}

		wait := g.retry.delay(rate)
		g.logger.Printf("Retrying %s (attempt %d/%d failed with status %d, rate %d/%d, sleeping %s)",
			desc, attempt, g.retry.maxAttempts, status, rate.Remaining, rate.Limit, wait)
		g.retry.sleep(wait)
	}
}

// responseMeta extracts the status code and rate-limit headers from a failed
// attempt. go-github surfaces quota exhaustion as a typed error that carries
// the parsed headers even when the response itself is unavailable.
func responseMeta(resp *github.Response, err error) (int, github.Rate) {
	if resp != nil {
		return resp.StatusCode, resp.Rate
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.Response.StatusCode, rateErr.Rate
	}
	return 0, github.Rate{}
}

func isDecodeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	return errors.As(err, &typeErr) || errors.As(err, &syntaxErr)
}

func statusCodeList(seen map[int]struct{}) string {
	codes := make([]int, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = strconv.Itoa(code)
	}
	return strings.Join(parts, ", ")
}
