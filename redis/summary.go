package redis

import (
	"context"
	"encoding/json"

	"github.com/m-lab/filexfer/runner"
)

const summaryPrefix = "filexfer:summary:"

// PutSummary appends |s| to the list of summaries of its run.
func (c *Client) PutSummary(ctx context.Context, s *runner.EntrySummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := summaryPrefix + s.RunID
	if err := c.rdb.RPush(ctx, key, data).Err(); err != nil {
		return err
	}
	return c.rdb.Expire(ctx, key, flagTTL).Err()
}

// Summaries returns the summaries of run |runID| in completion order.
func (c *Client) Summaries(ctx context.Context, runID string) ([]runner.EntrySummary, error) {
	values, err := c.rdb.LRange(ctx, summaryPrefix+runID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]runner.EntrySummary, 0, len(values))
	for _, v := range values {
		var s runner.EntrySummary
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
