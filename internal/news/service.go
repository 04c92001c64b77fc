package news

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// ErrUnknownSearch is returned when no stored namespace matches a hash.
var ErrUnknownSearch = errors.New("unknown search")

// Pipeline post-processes a station's clip table before it is exported.
// Text analysis lives behind this hook.
type Pipeline func(ctx context.Context, station string, t *table.Table) (*table.Table, error)

// ServiceOptions configures NewService.
type ServiceOptions struct {
	Backend         Backend
	Client          Client
	MaxRecords      int
	RequestInterval time.Duration
	Workers         int
	Resolution      Resolution
	Pipeline        Pipeline
	Logger          *slog.Logger
}

// Service owns the shared fetcher, so every Analysis it creates shares one
// rate limiter and one single-flight group.
type Service struct {
	backend    Backend
	assembler  *Assembler
	resolution Resolution
	pipeline   Pipeline
	logger     *slog.Logger
}

// NewService wires a Fetcher and an Assembler over opts.Backend.
func NewService(opts ServiceOptions) *Service {
	logger := logging.OrNop(opts.Logger)
	fetcher := NewFetcher(opts.Backend, opts.Client, FetcherOptions{
		RequestInterval: opts.RequestInterval,
		Logger:          logger,
	})
	res := opts.Resolution
	if res == "" {
		res = Monthly
	}
	return &Service{
		backend:    opts.Backend,
		assembler:  NewAssembler(fetcher, Builder{MaxRecords: opts.MaxRecords}, opts.Workers, logger),
		resolution: res,
		pipeline:   opts.Pipeline,
		logger:     logger,
	}
}

// List enumerates the metadata of every stored search.
func (s *Service) List(ctx context.Context) iter.Seq2[Metadata, error] {
	return s.backend.List(ctx)
}

// Find returns the stored search whose hash is hash.
func (s *Service) Find(ctx context.Context, hash string) (*Search, error) {
	for meta, err := range s.backend.List(ctx) {
		if err != nil {
			return nil, err
		}
		search, err := NewSearch(meta)
		if err != nil {
			s.logger.Warn("skipping unreadable metadata", "err", err)
			continue
		}
		if search.Hash == hash {
			return search, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSearch, hash)
}

// NewAnalysis starts an empty session. Call Search before anything else.
func (s *Service) NewAnalysis() *Analysis {
	return &Analysis{svc: s, logger: s.logger}
}

// SearchOptions tunes Analysis.Search.
type SearchOptions struct {
	// Resolution overrides the service default for clip partitioning.
	Resolution Resolution
	// Refresh refetches every request, replacing cached entries.
	Refresh bool
}

// Analysis is one search session: the namespace it writes to and the
// datasets built for it.
type Analysis struct {
	svc    *Service
	search *Search
	logger *slog.Logger

	Volume *VolumeDataset
	Clips  *ClipsDataset
}

// Current returns the active search, or nil before Search.
func (a *Analysis) Current() *Search {
	return a.search
}

// Open makes meta the active search and creates its namespace without
// fetching anything.
func (a *Analysis) Open(ctx context.Context, meta Metadata) error {
	search, err := NewSearch(meta)
	if err != nil {
		return err
	}
	a.search = search
	a.Volume, a.Clips = nil, nil
	a.logger = a.svc.logger.With("run", uuid.NewString(), "namespace", search.Hash)
	a.logger.Info("initialized search",
		"topic", search.Topic,
		"stations", strings.Join(search.Stations, ", "),
		"start", meta.Start,
		"end", meta.End)

	if err := a.svc.backend.CreateNamespace(ctx, search.Hash, meta); err != nil {
		return fmt.Errorf("create namespace: %w", err)
	}
	return nil
}

// Search opens meta and builds both datasets. Clips are skipped when meta
// has no explicit start and end.
func (a *Analysis) Search(ctx context.Context, meta Metadata, opts SearchOptions) error {
	if err := a.Open(ctx, meta); err != nil {
		return err
	}
	if err := a.FetchVolume(ctx, opts.Refresh); err != nil {
		return err
	}
	if !a.search.HasSpan() {
		a.logger.Warn("no explicit start and end, skipping clips")
		return nil
	}
	return a.FetchClips(ctx, opts.Resolution, opts.Refresh)
}

// FetchVolume builds the volume dataset for the active search.
func (a *Analysis) FetchVolume(ctx context.Context, refresh bool) error {
	if a.search == nil {
		return ErrNoSearch
	}
	a.logger.Info("getting volume dataset")
	ds, err := a.svc.assembler.Volume(ctx, a.search, refreshOpt(refresh)...)
	if err != nil {
		return fmt.Errorf("volume dataset: %w", err)
	}
	a.Volume = ds
	return nil
}

// FetchClips builds the clip dataset for the active search.
func (a *Analysis) FetchClips(ctx context.Context, res Resolution, refresh bool) error {
	if a.search == nil {
		return ErrNoSearch
	}
	if res == "" {
		res = a.svc.resolution
	}
	a.logger.Info("getting clips dataset", "resolution", string(res))
	ds, err := a.svc.assembler.Clips(ctx, a.search, res, refreshOpt(refresh)...)
	if err != nil {
		return fmt.Errorf("clips dataset: %w", err)
	}
	a.Clips = ds
	return nil
}

// Export runs the pipeline over each station's clips and saves the result
// as dataset lower(station) in the search namespace. Stations without clips
// are skipped.
func (a *Analysis) Export(ctx context.Context) error {
	if a.search == nil {
		return ErrNoSearch
	}
	if a.Clips == nil {
		return fmt.Errorf("%w: clips have not been fetched", ErrNoSearch)
	}
	for _, station := range a.search.Stations {
		t := a.Clips.Stations[station]
		if t.Len() == 0 {
			a.logger.Warn("no clips to export", "station", station)
			continue
		}
		if a.svc.pipeline != nil {
			var err error
			if t, err = a.svc.pipeline(ctx, station, t); err != nil {
				return fmt.Errorf("pipeline for %s: %w", station, err)
			}
		}
		name := strings.ToLower(station)
		if err := a.svc.backend.SaveDataset(ctx, a.search.Hash, name, t); err != nil {
			return fmt.Errorf("save dataset %s: %w", name, err)
		}
		a.logger.Info("exported dataset", "station", station, "rows", t.Len())
	}
	return nil
}

func refreshOpt(refresh bool) []FetchOption {
	if refresh {
		return []FetchOption{WithRefresh()}
	}
	return nil
}
