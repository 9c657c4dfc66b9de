/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the obligation engine. Handles configuration,
  dependency injection, and graceful shutdown.

COMMANDS:
  serve      Run the HTTP server (with background scheduler)
  backfill   Generate missing periods for all active recurring works
  overdue    Flag overdue tasks
  periods    Print a work's periods as a table
  seed       Install a service catalog from a JSON file

CONFIGURATION:
  Flags first, then environment (.env supported), then defaults.
  See config/config.go for the full variable list.

GRACEFUL SHUTDOWN (serve):
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server serve --db="./data/obligations.db"

  # Run on different port
  ./server serve --port=3000

  # One-shot backfill from cron
  ./server backfill --db="./data/obligations.db"

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background backfill
  - config/config.go: Environment configuration
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/warp/obligation-engine/api"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/catalog"
	"github.com/warp/obligation-engine/config"
	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/store/sqlite"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string
	var port int

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Recurring obligation engine",
		Long: `Generates recurring periods for ongoing works, instantiates their tasks,
tracks completion, and raises invoices when a period's tasks are done.`,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: $DATABASE_PATH or ./obligations.db)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP server port (default: $PORT or 8080)")

	rootCmd.AddCommand(
		newServeCmd(&dbPath, &port),
		newBackfillCmd(&dbPath),
		newOverdueCmd(&dbPath),
		newPeriodsCmd(&dbPath),
		newSeedCmd(&dbPath),
	)

	return rootCmd
}

// withEngine loads config, opens the store, builds the engine, runs fn, and
// closes the store. Every subcommand goes through here.
func withEngine(dbPath string, port int, fn func(cfg *config.Config, store *sqlite.Store, eng *obligation.Engine) error) error {
	cfg, err := config.Load(dbPath, port)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	eng := obligation.New(store)
	eng.Calendar = engine.Calendar{FiscalYearStartMonth: cfg.FiscalYearStartMonth}
	eng.Numbers = billing.NumberPolicy{
		Prefix:  cfg.InvoicePrefix,
		Padding: cfg.InvoicePadding,
		Start:   cfg.InvoiceStart,
	}

	return fn(cfg, store, eng)
}

func newServeCmd(dbPath *string, port *int) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(*dbPath, *port, func(cfg *config.Config, store *sqlite.Store, eng *obligation.Engine) error {
				handler := api.NewHandler(eng)
				router := api.NewRouter(handler)

				scheduler := api.NewBackfillScheduler(eng)
				if cfg.SchedulerInterval > 0 {
					scheduler.CheckInterval = cfg.SchedulerInterval
				} else {
					scheduler.Enabled = false
				}
				scheduler.Start()
				defer scheduler.Stop()

				server := &http.Server{
					Addr:         fmt.Sprintf(":%d", cfg.Port),
					Handler:      router,
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 15 * time.Second,
					IdleTimeout:  60 * time.Second,
				}

				go func() {
					log.Printf("🚀 Server starting on http://localhost:%d", cfg.Port)
					log.Printf("📊 API available at http://localhost:%d/api", cfg.Port)
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Fatalf("Server failed: %v", err)
					}
				}()

				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit

				log.Println("Shutting down server...")

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("server forced to shutdown: %w", err)
				}

				log.Println("Server stopped")
				return nil
			})
		},
	}
}

func newBackfillCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Generate missing periods for all active recurring works",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(*dbPath, 0, func(cfg *config.Config, store *sqlite.Store, eng *obligation.Engine) error {
				works, periods, err := eng.BackfillAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Checked %d works, created %d periods\n", works, periods)
				return nil
			})
		},
	}
}

func newOverdueCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Flag pending tasks whose due date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(*dbPath, 0, func(cfg *config.Config, store *sqlite.Store, eng *obligation.Engine) error {
				n, err := eng.UpdateOverdueStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Flagged %d tasks overdue\n", n)
				return nil
			})
		},
	}
}

func newPeriodsCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "periods <work-id>",
		Short: "Print a work's periods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(*dbPath, 0, func(cfg *config.Config, store *sqlite.Store, eng *obligation.Engine) error {
				ctx := cmd.Context()
				work, err := store.GetWork(ctx, args[0])
				if err != nil {
					return err
				}
				periods, err := store.ListPeriods(ctx, work.ID)
				if err != nil {
					return err
				}
				if len(periods) == 0 {
					fmt.Println("No periods found.")
					return nil
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Period", "Start", "End", "Status", "Tasks", "Billed"})
				for _, p := range periods {
					billed := ""
					if p.IsBilled {
						billed = "yes"
					}
					tw.AppendRow(table.Row{
						p.Name,
						p.Start.String(),
						p.End.String(),
						p.Status,
						fmt.Sprintf("%d/%d", p.CompletedTasks, p.TotalTasks),
						billed,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func newSeedCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.json>",
		Short: "Install a service catalog from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(*dbPath, 0, func(cfg *config.Config, store *sqlite.Store, eng *obligation.Engine) error {
				services, templates, err := catalog.LoadFile(args[0])
				if err != nil {
					return err
				}
				if err := catalog.Install(cmd.Context(), store, services, templates); err != nil {
					return err
				}
				fmt.Printf("Installed %d services, %d task templates\n", len(services), len(templates))
				return nil
			})
		},
	}
}
