package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDrainCmd(o *options) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Upload queued captures",
		Long: "Upload queued captures one at a time. Failed entries move to the back\n" +
			"of the queue and are retried on the next drain. With --watch the\n" +
			"outbox is drained and refreshed until interrupted.",
		Args: cobra.NoArgs,
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			return a.drain(cmd.Context(), watch)
		}),
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep draining until interrupted")
	return cmd
}

func newRefreshCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch finished text for uploaded captures into the library",
		Args:  cobra.NoArgs,
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			tok, err := a.token()
			if err != nil {
				return err
			}
			sum, err := a.outbox.Refresh(cmd.Context(), tok, a.lib)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Checked %d, indexed %d, still processing %d", sum.Checked, sum.Indexed, sum.Waiting)
			if sum.Failures > 0 {
				fmt.Fprintf(a.out, ", %d lookups failed", sum.Failures)
			}
			fmt.Fprintln(a.out)
			return nil
		}),
	}
}

func (a *App) drain(ctx context.Context, watch bool) error {
	tok, err := a.token()
	if err != nil {
		return err
	}

	for {
		sum, err := a.outbox.Run(ctx, tok, a.cfg.DrainInterval)
		if sum.Completed+sum.Failed+sum.Dropped > 0 || !watch {
			fmt.Fprintf(a.out, "Uploaded %d, failed %d, dropped %d, %d left in queue\n",
				sum.Completed, sum.Failed, sum.Dropped, sum.Remaining)
		}
		if watch && errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if !watch {
			return nil
		}

		if _, err := a.outbox.Refresh(ctx, tok, a.lib); err != nil && ctx.Err() == nil {
			a.logger.Warn(ctx, "refresh failed", "error", err)
		}

		t := time.NewTimer(max(a.cfg.DrainInterval, time.Second))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
