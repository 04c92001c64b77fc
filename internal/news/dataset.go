package news

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// DefaultWorkers bounds concurrent fetches per assembly.
const DefaultWorkers = 4

// VolumeDataset is airtime volume for a search: all stations together and
// each station on its own.
type VolumeDataset struct {
	Combined *table.Table
	Stations map[string]*table.Table
}

// ClipsDataset holds the clip table of each station.
type ClipsDataset struct {
	Stations map[string]*table.Table
}

// Assembler drives the Fetcher across stations and date ranges.
type Assembler struct {
	fetcher *Fetcher
	builder Builder
	workers int
	logger  *slog.Logger
}

// NewAssembler returns an Assembler running at most workers fetches at once.
func NewAssembler(fetcher *Fetcher, builder Builder, workers int, logger *slog.Logger) *Assembler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Assembler{
		fetcher: fetcher,
		builder: builder,
		workers: workers,
		logger:  logging.OrNop(logger),
	}
}

// chunk is one fetch of an assembly; its table lands in out.
type chunk struct {
	query     Query
	transform Transform
	out       **table.Table
	attrs     []any
}

// run executes chunks on the worker pool. A chunk that fails leaves its slot
// nil and assembly continues; only the end of ctx aborts.
func (a *Assembler) run(ctx context.Context, namespace string, chunks []chunk, opts []FetchOption) error {
	g := new(errgroup.Group)
	g.SetLimit(a.workers)
	for _, c := range chunks {
		g.Go(func() error {
			log := a.logger.With(c.attrs...)
			params, err := a.builder.Build(c.query)
			if err != nil {
				return err
			}
			res, err := a.fetcher.Fetch(ctx, namespace, params, c.transform, opts...)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("fetch failed, skipping chunk", "err", err)
				return nil
			}
			if res.Entry.Failed() {
				log.Warn("chunk has no data", "err", res.Entry.Error)
			}
			*c.out = res.Entry.Table()
			return nil
		})
	}
	return g.Wait()
}

// Volume fetches the combined timeline and one timeline per station. The
// time-series endpoint is not result-capped, so nothing is partitioned.
func (a *Assembler) Volume(ctx context.Context, s *Search, opts ...FetchOption) (*VolumeDataset, error) {
	if s == nil {
		return nil, ErrNoSearch
	}
	ds := &VolumeDataset{Stations: make(map[string]*table.Table, len(s.Stations))}
	var combined *table.Table
	perStation := make([]*table.Table, len(s.Stations))

	chunks := []chunk{{
		query:     Query{Topic: s.Topic, Stations: s.Stations, Mode: ModeTimelineVolume, Start: s.Start, End: s.End},
		transform: TimelineRecords,
		out:       &combined,
		attrs:     []any{"station", "combined"},
	}}
	for i, station := range s.Stations {
		chunks = append(chunks, chunk{
			query:     Query{Topic: s.Topic, Stations: []string{station}, Mode: ModeTimelineVolume, Start: s.Start, End: s.End},
			transform: TimelineRecords,
			out:       &perStation[i],
			attrs:     []any{"station", station},
		})
	}

	if err := a.run(ctx, s.Hash, chunks, opts); err != nil {
		return nil, err
	}
	ds.Combined = table.Concat(combined)
	for i, station := range s.Stations {
		ds.Stations[station] = table.Concat(perStation[i])
	}
	a.logger.Info("created volume datasets", "namespace", s.Hash, "stations", s.Stations)
	return ds, nil
}

// Clips partitions the search span and fetches every (station, range)
// pair. Ranges without data are left out of the station's table, which
// keeps range order otherwise.
func (a *Assembler) Clips(ctx context.Context, s *Search, res Resolution, opts ...FetchOption) (*ClipsDataset, error) {
	if s == nil {
		return nil, ErrNoSearch
	}
	if !s.HasSpan() {
		return nil, fmt.Errorf("%w: clips need explicit start and end", ErrInvalidRange)
	}
	ranges, err := Partition(s.Start, s.End, res)
	if err != nil {
		return nil, err
	}

	slots := make([][]*table.Table, len(s.Stations))
	var chunks []chunk
	for i, station := range s.Stations {
		slots[i] = make([]*table.Table, len(ranges))
		for j, r := range ranges {
			chunks = append(chunks, chunk{
				query: Query{
					Topic:    s.Topic,
					Stations: []string{station},
					Mode:     ModeClipGallery,
					Start:    r.First,
					End:      endOfDay(r.Last),
				},
				transform: ClipRecords,
				out:       &slots[i][j],
				attrs:     []any{"station", station, "range", r.String()},
			})
		}
	}

	if err := a.run(ctx, s.Hash, chunks, opts); err != nil {
		return nil, err
	}

	ds := &ClipsDataset{Stations: make(map[string]*table.Table, len(s.Stations))}
	for i, station := range s.Stations {
		ds.Stations[station] = table.Concat(slots[i]...)
	}
	a.logger.Info("created clip datasets", "namespace", s.Hash, "stations", s.Stations, "ranges", len(ranges))
	return ds, nil
}

func endOfDay(t time.Time) time.Time {
	return day(t).Add(24*time.Hour - time.Second)
}
