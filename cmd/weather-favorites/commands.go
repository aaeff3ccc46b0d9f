package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-favorites/internal/api/http"
	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/scheduler"
)

type cli struct {
	root *cobra.Command
	load func() (*components, error)
}

func newCLI(load func() (*components, error)) *cli {
	c := &cli{
		root: &cobra.Command{
			Use:           "weather-favorites",
			Short:         "Saved locations, forecasts and cached forecast graphs",
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		load: load,
	}
	c.root.AddCommand(c.newServeCmd(), c.newCacheCmd(), c.newFavoritesCmd())
	return c
}

// withComponents wires the application for the duration of fn.
func (c *cli) withComponents(fn func(*components) error) error {
	comp, err := c.load()
	if err != nil {
		return err
	}
	defer func() {
		if err := comp.close(); err != nil {
			logger.Get("main").Warnf("closing store: %v", err)
		}
	}()
	return fn(comp)
}

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the housekeeping jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withComponents(func(comp *components) error {
				return serve(cmd.Context(), comp)
			})
		},
	}
}

func serve(ctx context.Context, comp *components) error {
	log := logger.Get("main")
	cfg := comp.cfg

	sched := scheduler.New(scheduler.Config{
		CleanupInterval:  cfg.GraphCleanupInterval,
		CleanupMaxAge:    cfg.GraphCleanupMaxAge,
		PrefetchInterval: cfg.PrefetchInterval,
	}, comp.service.Graphs(), comp.favorites, comp.service)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-favorites",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-favorites",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:       comp.service,
		Favorites:     comp.favorites,
		CleanupMaxAge: cfg.GraphCleanupMaxAge,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on :%s", cfg.Port)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func (c *cli) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the persistent cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts per prefix and graph statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withComponents(func(comp *components) error {
				ctx := cmd.Context()
				out := struct {
					Cache  any `json:"cache"`
					Graphs any `json:"graphs"`
				}{
					Cache:  comp.service.Cache().Stats(ctx),
					Graphs: comp.service.Graphs().Stats(ctx),
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cache entries, all of them unless --prefix is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			return c.withComponents(func(comp *components) error {
				n := comp.service.Cache().ClearByPrefix(cmd.Context(), prefix)
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
				return err
			})
		},
	}
	clearCmd.Flags().StringP("prefix", "p", "", "Only remove keys starting with this prefix (e.g. weather:)")

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove graphs older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			return c.withComponents(func(comp *components) error {
				if maxAge <= 0 {
					maxAge = comp.cfg.GraphCleanupMaxAge
				}
				n := comp.service.Graphs().Cleanup(cmd.Context(), maxAge)
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %d graphs older than %s\n", n, maxAge)
				return err
			})
		},
	}
	cleanup.Flags().Duration("max-age", 0, "Maximum graph age (default GRAPH_CLEANUP_MAX_AGE)")

	cmd.AddCommand(stats, clearCmd, cleanup)
	return cmd
}

func (c *cli) newFavoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Inspect saved locations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved locations in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withComponents(func(comp *components) error {
				list, err := comp.favorites.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "#\tKEY\tNAME\tLAT\tLON")
				for i, l := range list {
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.4f\n", i+1, l.ID, l.Name, l.Lat, l.Lon)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}
