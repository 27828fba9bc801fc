package whoop

import "time"

// RetryPolicy describes the retry schedule and terminal/retryable
// classification for token-endpoint requests. It is shared by the pull path
// and the webhook path so both see identical refresh semantics.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Delay before the second attempt; doubles per attempt
}

// DefaultTokenRetryPolicy is the refresh policy: 3 attempts total, 1s base
// delay, doubling per attempt
var DefaultTokenRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
}

// Retryable classifies a failed attempt. Server-side errors (5xx) and
// network failures (status 0) are retryable; any 4xx is terminal.
func (p RetryPolicy) Retryable(statusCode int) bool {
	return statusCode == 0 || statusCode >= 500
}

// Delay returns the backoff before the given retry. attempt is 1-based:
// Delay(1) is the wait before the second attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
