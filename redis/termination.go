package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	terminationPrefix = "filexfer:stop:"
	flagTTL           = 24 * time.Hour
)

// SetTerminationFlag sets 0 or 1 for a run ID. A flag of 1 asks the run to
// stop after flushing its current entry.
func (c *Client) SetTerminationFlag(ctx context.Context, runID string, flag int) error {
	return c.rdb.Set(ctx, terminationPrefix+runID, flag, flagTTL).Err()
}

// GetTerminationFlag returns 0 or 1, defaults to 0 if not found
func (c *Client) GetTerminationFlag(ctx context.Context, runID string) (int, error) {
	val, err := c.rdb.Get(ctx, terminationPrefix+runID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
