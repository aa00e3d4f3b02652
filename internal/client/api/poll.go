package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds WaitForTerminal.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

var errNotTerminal = errors.New("not terminal yet")

// WaitForTerminal polls the record until it is completed or error. Transient
// lookup failures are retried like a non-terminal answer; other errors end
// the wait at once. Running out of attempts yields common.ErrPollTimeout,
// which says nothing about the record's eventual fate.
func (c *Client) WaitForTerminal(ctx context.Context, token, fileID string, p RetryPolicy) (*FileStatus, error) {
	attempts := max(p.MaxAttempts, 1)

	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(max(p.Interval, time.Millisecond)))

	var last *FileStatus
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		st, err := c.GetStatus(ctx, token, fileID)
		switch {
		case err == nil:
			last = st
			if st.Terminal() {
				return nil
			}
			return retry.RetryableError(errNotTerminal)
		case errors.Is(err, common.ErrTransient):
			return retry.RetryableError(err)
		default:
			return err
		}
	})

	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, errNotTerminal), errors.Is(err, common.ErrTransient) && ctx.Err() == nil:
		return last, fmt.Errorf("%w: %d attempts for %s", common.ErrPollTimeout, attempts, fileID)
	default:
		return last, err
	}
}
