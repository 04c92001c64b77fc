// Package cli holds the newsfetch commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/i474232898/gdelt-news-cache/internal/config"
	"github.com/i474232898/gdelt-news-cache/internal/gdelt"
	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// app is the state shared by every command once the root pre-run is done.
type app struct {
	verbose bool

	cfg     *config.AppConfig
	logger  *slog.Logger
	backend news.Backend
	service *news.Service
	closers []io.Closer
}

// NewRootCommand builds the newsfetch command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "newsfetch",
		Short:         "Cached GDELT TV news searches",
		Long:          "newsfetch queries the GDELT TV API for airtime volume and clips, caching every response so repeated searches cost nothing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(a),
		newSearchCommand(a),
		newListCommand(a),
		newExportCommand(a),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "newsfetch %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func (a *app) setup(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Options{
		Verbose: a.verbose || cfg.Verbose,
		JSON:    cfg.LogJSON,
		Writer:  logOut,
	})

	a.backend, err = a.openBackend(ctx)
	if err != nil {
		return err
	}

	client, err := gdelt.New(gdelt.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		Backoff:   gdelt.BackoffConfig{MaxRetries: cfg.HTTPRetries},
	})
	if err != nil {
		return err
	}

	a.service = news.NewService(news.ServiceOptions{
		Backend:         a.backend,
		Client:          client,
		MaxRecords:      cfg.MaxRecords,
		RequestInterval: cfg.RequestInterval,
		Workers:         cfg.Workers,
		Resolution:      cfg.Resolution,
		Pipeline:        news.KeywordFilter(cfg.Keywords...),
		Logger:          a.logger,
	})
	return nil
}

func (a *app) openBackend(ctx context.Context) (news.Backend, error) {
	switch a.cfg.Storage {
	case config.StorageMemory:
		return store.NewMemory(a.logger), nil
	case config.StorageRemote:
		return store.NewRemote(ctx, a.cfg.Remote, a.logger)
	case config.StorageSQLite:
		db, err := store.OpenSQLite(a.cfg.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		return db, nil
	default:
		return store.NewLocal(a.cfg.CacheDir, a.cfg.DataDir, a.logger)
	}
}

func (a *app) close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
