// @title Patient Records Access API
// @version 1.0
// @description Grants, permisos temporales y acceso de emergencia a historias clínicas.
// @BasePath /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pg "patient-records-access/internal/adapters/storage/postgres"
	"patient-records-access/internal/jobs"
	"patient-records-access/internal/router"

	"github.com/spf13/cobra"
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "patient-records-access",
		Short: "Control de acceso a historias clínicas",
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Archivo .env opcional")

	rootCmd.AddCommand(serveCmd(&envFile))
	rootCmd.AddCommand(migrateCmd(&envFile))
	rootCmd.AddCommand(sweepCmd(&envFile))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta la API HTTP y el barrido de vencimientos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *envFile)
		},
	}
}

func runServer(ctx context.Context, envFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, envFile)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := jobs.NewSweeper(a.cfg.SweepInterval, a.log, a.tasks()...)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := &http.Server{
		Addr: a.cfg.Addr(),
		Handler: router.NewRouter(router.Options{
			AuthVerifier: a.verifier,
			Core:         a.core,
			Logger:       a.log,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", map[string]any{"addr": srv.Addr, "env": a.cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("server stopped", nil)
	return nil
}

func migrateCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migraciones de base de datos",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Aplica las migraciones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(*envFile, func(ctx context.Context, a *app) error {
				if err := pg.Migrate(ctx, a.db); err != nil {
					return err
				}
				v, err := pg.Version(ctx, a.db)
				if err != nil {
					return err
				}
				fmt.Printf("Schema at version %d.\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Muestra el estado de las migraciones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(*envFile, func(ctx context.Context, a *app) error {
				return pg.Status(ctx, a.db)
			})
		},
	})

	return cmd
}

func sweepCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Corre una pasada del barrido de vencimientos y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			counts := jobs.NewSweeper(a.cfg.SweepInterval, a.log, a.tasks()...).RunOnce(ctx)
			for name, n := range counts {
				fmt.Printf("%-24s %d\n", name, n)
			}
			return nil
		},
	}
}

func withDB(envFile string, fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, envFile)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.db == nil {
		return errors.New("DB_DSN is required for migrations")
	}
	return fn(ctx, a)
}
