// Command catalog runs the photo-catalog scheduler: an HTTP server
// (serve), schema migrations (migrate), and a one-off folder scan (scan)
// for operating the service without the HTTP surface.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/maukemana/catalog/internal/app"
	"github.com/maukemana/catalog/internal/config"
	"github.com/maukemana/catalog/internal/logger"
	"github.com/maukemana/catalog/internal/observability"
	"github.com/maukemana/catalog/internal/router"
)

func main() {
	root := &cobra.Command{
		Use:   "catalog",
		Short: "Photo-catalog derived-artifact scheduler",
	}
	root.AddCommand(serveCmd(), migrateCmd(), scanCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Init("catalog", a.Config.Environment, logger.ParseLevelFromEnv())

			shutdownOTel, err := observability.InitOTel(cmd.Context(), "catalog")
			if err != nil {
				log.Printf("warning: opentelemetry init failed: %v", err)
			} else {
				defer func() {
					if err := shutdownOTel(context.Background()); err != nil {
						log.Printf("opentelemetry shutdown failed: %v", err)
					}
				}()
			}

			if err := a.Catalog.LoadFromDatabase(cmd.Context()); err != nil {
				log.Printf("warning: preload from database failed: %v", err)
			}

			r := router.Setup(a.DB, a.Config, a.Catalog)
			srv := &http.Server{Addr: ":" + a.Config.Port, Handler: r}

			go func() {
				log.Printf("catalog listening on :%s", a.Config.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal(err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Run database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			if err := db.Ping(); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			if err := goose.Run(command, db, "migrations"); err != nil {
				return fmt.Errorf("goose %s: %w", command, err)
			}
			fmt.Printf("goose %s completed\n", command)
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	var rescan bool
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Select and scan a folder without starting the HTTP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Init("catalog", a.Config.Environment, logger.ParseLevelFromEnv())

			folder, _, err := a.Catalog.SelectFolder(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if rescan {
				err = a.Catalog.RescanFolder(folder.ID)
			} else {
				err = a.Catalog.ScanFolder(folder.ID)
			}
			if err != nil {
				return err
			}
			fmt.Printf("scanned %s (folder %s)\n", folder.Path, folder.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rescan, "rescan", false, "run as a rescan (scan and rescan run the same reconcile walk)")
	return cmd
}
