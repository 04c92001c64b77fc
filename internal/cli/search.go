package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/gdelt-news-cache/internal/config"
	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/scheduler"
)

type searchFlags struct {
	topic      string
	stations   []string
	start      string
	end        string
	resolution string
	refresh    bool
	export     bool
	all        bool
}

func newSearchCommand(a *app) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Fetch volume and clips for a topic, reusing cached responses",
		Example: `  newsfetch search --topic weather --station CNN --station FOX --start 01/01/2020 --end 03/31/2020
  newsfetch search --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if f.all {
				return a.replayAll(ctx, cmd.OutOrStdout(), f.export)
			}
			return a.search(ctx, cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.topic, "topic", "", "search topic")
	cmd.Flags().StringSliceVar(&f.stations, "station", nil, "station identifier, repeatable")
	cmd.Flags().StringVar(&f.start, "start", "", "first day, MM/DD/YYYY")
	cmd.Flags().StringVar(&f.end, "end", "", "last day, MM/DD/YYYY")
	cmd.Flags().StringVar(&f.resolution, "resolution", "", "clip partitioning: monthly or weekly")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "refetch every request, replacing cached responses")
	cmd.Flags().BoolVar(&f.export, "export", false, "save each station's clips as a dataset")
	cmd.Flags().BoolVar(&f.all, "all", false, "replay every stored and configured search")
	cmd.MarkFlagsMutuallyExclusive("all", "topic")
	return cmd
}

func (a *app) search(ctx context.Context, out io.Writer, f searchFlags) error {
	if f.topic == "" || len(f.stations) == 0 {
		return errors.New("--topic and at least one --station are required")
	}
	// Empty keeps the configured default.
	var res news.Resolution
	if f.resolution != "" {
		var err error
		if res, err = news.ParseResolution(f.resolution); err != nil {
			return err
		}
	}

	meta := news.Metadata{Topic: f.topic, Stations: f.stations, Start: f.start, End: f.end}
	analysis := a.service.NewAnalysis()
	if err := analysis.Search(ctx, meta, news.SearchOptions{Resolution: res, Refresh: f.refresh}); err != nil {
		return err
	}
	if f.export {
		if analysis.Clips == nil {
			a.logger.Warn("nothing to export without clips")
		} else if err := analysis.Export(ctx); err != nil {
			return err
		}
	}
	printSummary(out, analysis)
	return nil
}

func (a *app) replayAll(ctx context.Context, out io.Writer, export bool) error {
	searches, err := config.LoadSearches(a.cfg.SearchesFile)
	if err != nil {
		return err
	}
	sched := scheduler.New(a.service, scheduler.Options{
		Searches: searches,
		Export:   export,
		Logger:   a.logger,
	})
	n := sched.RunOnce(ctx)
	fmt.Fprintf(out, "replayed %d searches\n", n)
	return ctx.Err()
}

func printSummary(out io.Writer, analysis *news.Analysis) {
	search := analysis.Current()
	fmt.Fprintf(out, "search %s\n", search.Hash)
	if analysis.Volume != nil {
		fmt.Fprintf(out, "  volume combined: %d rows\n", analysis.Volume.Combined.Len())
		for _, station := range sortedKeys(analysis.Volume.Stations) {
			fmt.Fprintf(out, "  volume %s: %d rows\n", station, analysis.Volume.Stations[station].Len())
		}
	}
	if analysis.Clips != nil {
		for _, station := range sortedKeys(analysis.Clips.Stations) {
			fmt.Fprintf(out, "  clips %s: %d rows\n", station, analysis.Clips.Stations[station].Len())
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
