package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/client/api"
	"github.com/dmitrijs2005/scanvault/internal/client/outbox"
	"github.com/spf13/cobra"
)

func newListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show outbox entries, oldest first",
		Args:  cobra.NoArgs,
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			metas, err := a.outbox.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Fprintln(a.out, "Outbox is empty.")
				return nil
			}
			queued, err := a.outbox.Queue()
			if err != nil {
				return err
			}
			printEntries(a.out, metas, queued)
			return nil
		}),
	}
}

func printEntries(w io.Writer, metas []*outbox.Meta, queued []string) {
	pos := make(map[string]int, len(queued))
	for i, id := range queued {
		pos[id] = i + 1
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL ID\tSTATUS\tQUEUE\tSERVER\tCREATED\tNAME\tPREVIEW")
	for _, m := range metas {
		q := "-"
		if p, ok := pos[m.LocalID]; ok {
			q = fmt.Sprint(p)
		}
		server := "-"
		if m.ServerStatus != "" {
			server = m.ServerStatus
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.LocalID, m.Status, q, server, m.CreatedAt.Local().Format(time.DateTime), m.Name, m.Preview)
	}
	tw.Flush()
}

func newStatusCmd(o *options) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <local-id|file-id>",
		Short: "Ask the server how processing of an upload is going",
		Args:  cobra.ExactArgs(1),
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			tok, err := a.token()
			if err != nil {
				return err
			}
			fileID, err := a.resolveFileID(args[0])
			if err != nil {
				return err
			}

			var st *api.FileStatus
			if wait {
				st, err = a.api.WaitForTerminal(cmd.Context(), tok, fileID, api.RetryPolicy{
					MaxAttempts: a.cfg.Poll.MaxAttempts,
					Interval:    a.cfg.Poll.Interval,
				})
				if st != nil && err != nil {
					printStatus(a.out, st)
				}
			} else {
				st, err = a.api.GetStatus(cmd.Context(), tok, fileID)
			}
			if err != nil {
				return err
			}
			printStatus(a.out, st)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the record is completed or failed")
	return cmd
}

func printStatus(w io.Writer, st *api.FileStatus) {
	fmt.Fprintf(w, "%s: %s\n", st.ID, st.Status)
	if st.Error != nil {
		fmt.Fprintf(w, "error: %s\n", *st.Error)
	}
	if st.Text != nil {
		fmt.Fprintf(w, "\n%s\n", *st.Text)
	}
}

func newRetryCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <local-id|file-id>",
		Short: "Send a failed upload back for processing",
		Args:  cobra.ExactArgs(1),
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			tok, err := a.token()
			if err != nil {
				return err
			}
			fileID, err := a.resolveFileID(args[0])
			if err != nil {
				return err
			}
			st, err := a.api.Retry(cmd.Context(), tok, fileID)
			if err != nil {
				return err
			}
			printStatus(a.out, st)
			return nil
		}),
	}
}

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <local-id>",
		Short: "Remove an entry from the outbox",
		Args:  cobra.ExactArgs(1),
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			if err := a.outbox.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s\n", args[0])
			return nil
		}),
	}
}

func newPruneCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove uploaded entries whose text is already in the library",
		Args:  cobra.NoArgs,
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			n, err := a.outbox.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Pruned %d entries\n", n)
			return nil
		}),
	}
}
