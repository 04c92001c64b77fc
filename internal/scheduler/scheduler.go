package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/news"
)

// Options configures the replay job.
type Options struct {
	// Interval between replays; 24h when zero.
	Interval time.Duration
	// Searches are replayed alongside every search already in the backend.
	Searches []news.Metadata
	// Export saves each station's clips after a successful replay.
	Export bool
	// Timeout bounds one replay of one search; none when zero.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Scheduler periodically replays searches so their caches stay warm.
// Entries already cached are not fetched again.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *news.Service
	opts      Options
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(service *news.Service, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		opts:      opts,
		logger:    logging.OrNop(opts.Logger),
	}
}

// Start schedules the replay job, runs it once immediately and starts the
// underlying scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.opts.Interval).SingletonMode().Do(func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunOnce replays every configured and stored search and reports how many
// completed without error.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	searches := s.collect(ctx)
	if len(searches) == 0 {
		s.logger.Info("scheduler: no searches to replay")
		return 0
	}
	s.logger.Info("scheduler: replaying searches", "count", len(searches))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, meta := range searches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.replay(ctx, meta); err != nil {
				s.logger.Error("scheduler: replay failed", "topic", meta.Topic, "stations", meta.Stations, "err", err)
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}
	wg.Wait()
	s.logger.Info("scheduler: completed replay", "succeeded", ok, "total", len(searches))
	return ok
}

func (s *Scheduler) replay(ctx context.Context, meta news.Metadata) error {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	analysis := s.service.NewAnalysis()
	if err := analysis.Search(ctx, meta, news.SearchOptions{}); err != nil {
		return err
	}
	if s.opts.Export && analysis.Clips != nil {
		return analysis.Export(ctx)
	}
	return nil
}

// collect merges configured searches with stored ones, dropping duplicates
// by namespace hash.
func (s *Scheduler) collect(ctx context.Context) []news.Metadata {
	seen := make(map[string]bool)
	var out []news.Metadata
	add := func(meta news.Metadata) {
		search, err := news.NewSearch(meta)
		if err != nil {
			s.logger.Warn("scheduler: skipping invalid search", "topic", meta.Topic, "err", err)
			return
		}
		if seen[search.Hash] {
			return
		}
		seen[search.Hash] = true
		out = append(out, meta)
	}

	for _, meta := range s.opts.Searches {
		add(meta)
	}
	for meta, err := range s.service.List(ctx) {
		if err != nil {
			s.logger.Error("scheduler: listing stored searches failed", "err", err)
			break
		}
		add(meta)
	}
	return out
}
