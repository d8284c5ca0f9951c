package google

import (
	"errors"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Transient failures only. Auth failures fail fast: neither an API key nor a
// cached token changes between attempts.
var (
	retryableCodes = map[codes.Code]bool{
		codes.Unavailable:       true,
		codes.ResourceExhausted: true,
		codes.Internal:          true,
	}
	retryableHTTP = map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
)

func retryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableHTTP[apiErr.Code]
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return retryableHTTP[apiErrPtr.Code]
	}
	if s, ok := status.FromError(err); ok {
		return retryableCodes[s.Code()]
	}
	return false
}

type retryPolicy struct {
	maxRetries int
	backoff    gax.Backoff
}

func newRetryPolicy(maxRetries int) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retryPolicy{
		maxRetries: maxRetries,
		backoff:    gax.Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, Multiplier: 2},
	}
}

// callOptions returns a fresh retryer per call.
func (p retryPolicy) callOptions() []gax.CallOption {
	return []gax.CallOption{gax.WithRetry(func() gax.Retryer {
		return &boundedRetryer{max: p.maxRetries, backoff: p.backoff}
	})}
}

// boundedRetryer retries retryable errors at most max times.
type boundedRetryer struct {
	max      int
	attempts int
	backoff  gax.Backoff
}

func (r *boundedRetryer) Retry(err error) (time.Duration, bool) {
	if r.attempts >= r.max || !retryable(err) {
		return 0, false
	}
	r.attempts++
	return r.backoff.Pause(), true
}
