package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"whoop-sync/internal/metrics"
)

// recordsEnvelope is the paginated wrapper some collection endpoints return
type recordsEnvelope struct {
	Records   []json.RawMessage `json:"records"`
	NextToken *string           `json:"next_token"`
}

// unwrapRecords normalizes the two collection response shapes: a bare JSON
// array, or an envelope object with a records field. Only the first page is
// consumed; pagination traversal is a declared capacity limit.
func unwrapRecords(body []byte, kind Kind) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var envelope recordsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &FetchError{Kind: kind, Err: fmt.Errorf("unexpected response shape: %w", err)}
	}
	if envelope.Records == nil {
		return nil, &FetchError{Kind: kind, Err: fmt.Errorf("response has no records field")}
	}

	return envelope.Records, nil
}

func (c *Client) list(ctx context.Context, path, accessToken string, limit int, kind Kind) ([]json.RawMessage, error) {
	params := url.Values{"limit": {strconv.Itoa(limit)}}

	body, err := c.get(ctx, path+"?"+params.Encode(), accessToken, metrics.OpListResources, kind)
	if err != nil {
		return nil, err
	}

	return unwrapRecords(body, kind)
}

// ListCycles fetches the first page of physiological cycles
func (c *Client) ListCycles(ctx context.Context, accessToken string, limit int) ([]json.RawMessage, error) {
	return c.list(ctx, "/v1/cycle", accessToken, limit, KindCycle)
}

// GetCycle fetches a single cycle by id
func (c *Client) GetCycle(ctx context.Context, accessToken string, cycleID int64) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/cycle/%d", cycleID)
	return c.get(ctx, path, accessToken, metrics.OpGetResource, KindCycle)
}

// ListSleeps fetches the first page of sleep activities
func (c *Client) ListSleeps(ctx context.Context, accessToken string, limit int) ([]json.RawMessage, error) {
	return c.list(ctx, "/v2/activity/sleep", accessToken, limit, KindSleep)
}

// GetSleep fetches a single sleep activity by its UUID
func (c *Client) GetSleep(ctx context.Context, accessToken, sleepID string) (json.RawMessage, error) {
	path := "/v2/activity/sleep/" + url.PathEscape(sleepID)
	return c.get(ctx, path, accessToken, metrics.OpGetResource, KindSleep)
}

// ListRecoveries fetches the first page of recovery scores
func (c *Client) ListRecoveries(ctx context.Context, accessToken string, limit int) ([]json.RawMessage, error) {
	return c.list(ctx, "/v2/recovery", accessToken, limit, KindRecovery)
}

// GetRecoveryForCycle fetches the recovery belonging to a cycle. Recovery
// has no id of its own; it is addressed through its cycle.
func (c *Client) GetRecoveryForCycle(ctx context.Context, accessToken string, cycleID int64) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/cycle/%d/recovery", cycleID)
	return c.get(ctx, path, accessToken, metrics.OpGetResource, KindRecovery)
}

// ListWorkouts fetches the first page of workout activities
func (c *Client) ListWorkouts(ctx context.Context, accessToken string, limit int) ([]json.RawMessage, error) {
	return c.list(ctx, "/v1/activity/workout", accessToken, limit, KindWorkout)
}

// GetWorkout fetches a single workout by id
func (c *Client) GetWorkout(ctx context.Context, accessToken, workoutID string) (json.RawMessage, error) {
	path := "/v1/activity/workout/" + url.PathEscape(workoutID)
	return c.get(ctx, path, accessToken, metrics.OpGetResource, KindWorkout)
}
