package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(o *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <words>",
		Short: "Search extracted text in the local library",
		Args:  cobra.MinimumNArgs(1),
		RunE: o.withApp(func(cmd *cobra.Command, a *App, args []string) error {
			docs, err := a.lib.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(a.out, "No matches.")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintf(a.out, "%s  %s  [%s]\n", d.FileID, d.Name, d.Status)
				if d.Error != "" {
					fmt.Fprintf(a.out, "    error: %s\n", d.Error)
					continue
				}
				fmt.Fprintf(a.out, "    %s\n", snippet(d.Text, 120))
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of results")
	return cmd
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
