package whoop

import "fmt"

// Kind identifies a WHOOP resource kind
type Kind string

const (
	KindCycle    Kind = "cycle"
	KindSleep    Kind = "sleep"
	KindRecovery Kind = "recovery"
	KindWorkout  Kind = "workout"
)

// FetchError indicates a resource fetch against the WHOOP API failed,
// either with a non-2xx response or a network-level error (StatusCode 0)
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RefreshError indicates a token refresh failed terminally, either because
// the token endpoint returned 4xx (invalid grant, never retried) or because
// the retry schedule was exhausted
type RefreshError struct {
	StatusCode int // Last status observed, 0 for network failure
	Attempts   int
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh failed with status %d after %d attempt(s)", e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("token refresh failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// ExchangeError indicates an authorization-code exchange failed. A bad code
// is never retried.
type ExchangeError struct {
	StatusCode int
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("code exchange failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("code exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
