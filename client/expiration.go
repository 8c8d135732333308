package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/log"
)

// RemoveExecutions removes executions that finished more than retention ago.
func (c *Client) RemoveExecutions(ctx context.Context, retention time.Duration) error {
	return c.backend.RemoveExecutions(ctx, backend.RemoveFinishedBefore(c.clock.Now().Add(-retention)))
}

// RunAutoExpiration removes executions finished more than retention ago every interval until ctx
// is canceled.
func (c *Client) RunAutoExpiration(ctx context.Context, retention, interval time.Duration) error {
	if retention <= 0 || interval <= 0 {
		return fmt.Errorf("invalid expiration settings: retention %v, interval %v", retention, interval)
	}

	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.RemoveExecutions(ctx, retention); err != nil {
				c.backend.Options().Logger.ErrorContext(ctx, "removing finished executions", "error", err, log.DurationKey, retention.Milliseconds())
			}
		}
	}
}
