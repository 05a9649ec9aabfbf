package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/dmefax/faxdesk/internal/domain/apiconfig"
	"github.com/dmefax/faxdesk/internal/domain/bulk"
	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/domain/fax"
	"github.com/dmefax/faxdesk/internal/domain/sms"
	"github.com/dmefax/faxdesk/internal/platform/blobstore"
	"github.com/dmefax/faxdesk/internal/platform/db"
	"github.com/dmefax/faxdesk/internal/platform/middleware"
	"github.com/dmefax/faxdesk/internal/platform/notification"
	"github.com/dmefax/faxdesk/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "faxdesk",
		Short:        "DME order fax desk",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(bulkCmd())
	rootCmd.AddCommand(faxCmd())
	rootCmd.AddCommand(smsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the fax desk API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := db.NewMigrator(a.pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to a migrations directory (default: embedded)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := db.NewMigrator(a.pool, migrationFiles(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (default: embedded)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// newServer builds the echo instance with every route registered.
func newServer(a *app, artifacts blobstore.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders(a.cfg.IsProduction()))
	e.Use(middleware.BodyLimit("2M", "50M", "/api/v1/bulk", "/api/v1/documents", "/api/v1/fax/send"))
	e.Use(middleware.RequestTimeout(90*time.Second, "/api/v1/bulk"))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, func() *db.PoolStats { return db.GetPoolStats(a.pool) }))
	}

	// Documents and bulk runs
	bulk.NewHandler(a.orchestrator, artifacts, a.logger).RegisterRoutes(apiV1)
	blobstore.NewHandler(artifacts, false).RegisterRoutes(apiV1)

	// Providers
	fax.NewHandler(a.faxService()).RegisterRoutes(apiV1)
	smsSvc := a.smsService()
	sms.NewHandler(smsSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notification.NewManager(smsSvc, a.templates)).RegisterRoutes(apiV1)

	// Dispatch log and credential store
	if a.dispatch != nil {
		dispatchlog.NewHandler(a.dispatch).RegisterRoutes(apiV1)
	}
	if a.configs != nil {
		apiconfig.NewHandler(a.configs).RegisterRoutes(apiV1)
	}

	return e
}

func runServer() error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	e := newServer(a, blobstore.NewMemory())
	logger := a.logger

	// Graceful shutdown
	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
