package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i474232898/gdelt-news-cache/internal/news"
)

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print stored searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tTOPIC\tSTATIONS\tSTART\tEND")
			for meta, err := range a.service.List(cmd.Context()) {
				if err != nil {
					return err
				}
				search, err := news.NewSearch(meta)
				if err != nil {
					a.logger.Warn("skipping invalid stored search", "topic", meta.Topic, "err", err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					search.Hash, meta.Topic, strings.Join(meta.Stations, ","), dash(meta.Start), dash(meta.End))
			}
			return w.Flush()
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
