package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/gdelt-news-cache/internal/api/http"
	"github.com/i474232898/gdelt-news-cache/internal/config"
	"github.com/i474232898/gdelt-news-cache/internal/scheduler"
)

func newServeCommand(a *app) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the replay scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not replay searches periodically")
	return cmd
}

func (a *app) serve(parent context.Context, withScheduler bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if withScheduler {
		searches, err := config.LoadSearches(a.cfg.SearchesFile)
		if err != nil {
			return err
		}
		sched := scheduler.New(a.service, scheduler.Options{
			Interval: a.cfg.RefreshInterval,
			Searches: searches,
			Logger:   a.logger,
		})
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := fiber.New(fiber.Config{
		AppName:               "gdelt-news-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Uncached searches are rate limited and can take minutes.
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	srv.Use(logger.New())
	srv.Use(recover.New())

	srv.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "gdelt-news-cache",
		})
	})

	httpapi.RegisterRoutes(srv, a.service, a.logger)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "port", a.cfg.Port)
		errCh <- srv.Listen(":" + a.cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Error("error during shutdown", "err", err)
	}
	return nil
}
