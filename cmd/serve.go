package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/files"
	"github.com/bunbase/bunbase/internal/hooks"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/bunbase/bunbase/internal/rules"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/bunbase/bunbase/internal/server"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/extra/bundebug"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bunbase API server",
	Long:  `Starts the HTTP server with the record API, the realtime stream and the admin endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Connect to database
		db, err := bunx.NewDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer bunx.Close(db)

		if cfg.Debug {
			db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
			log.Printf("INFO: debug mode enabled, logging SQL queries")
		}

		if err := bunx.RunMigrations(cmd.Context(), db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Printf("INFO: database ready at %s", cfg.DBPath)

		// Initialize repositories
		collectionRepo := repository.NewBunCollectionRepository(db)
		fieldRepo := repository.NewBunFieldRepository(db)
		adminRepo := repository.NewBunAdminRepository(db)

		if err := auth.EnsureInitialAdmin(cmd.Context(), adminRepo); err != nil {
			return fmt.Errorf("failed to provision initial admin: %w", err)
		}

		// Initialize services
		registry := schema.NewRegistry(db, collectionRepo, fieldRepo)
		hookRegistry := hooks.NewRegistry()
		recordService := records.NewService(db, registry, hookRegistry)

		store, err := files.NewStore(cfg.StorageDir)
		if err != nil {
			return fmt.Errorf("failed to open file store: %w", err)
		}

		evaluator, err := rules.NewEvaluator()
		if err != nil {
			return fmt.Errorf("failed to build rule evaluator: %w", err)
		}

		issuer := auth.NewTokenIssuer(cfg.JWTSecret, auth.DefaultTokenTTL)
		resolver := auth.NewResolver(issuer, adminRepo, recordService)

		app := server.NewApp(server.AppOptions{
			Cfg:      cfg,
			DB:       db,
			Registry: registry,
			Records:  recordService,
			Hooks:    hookRegistry,
			Files:    store,
			Auth:     resolver,
			Rules:    evaluator,
			Admins:   adminRepo,
		})
		defer app.Close()

		handler := server.NewH2CHandler(server.RouterOptions{App: app})

		addr := fmt.Sprintf(":%d", cfg.Port)
		srv := &http.Server{
			Addr:        addr,
			Handler:     handler,
			ReadTimeout: 15 * time.Second,
			// SSE connections stay open; no write timeout.
			IdleTimeout: 60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("INFO: starting server on %s", addr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Wait for interrupt signal
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("INFO: received signal %v, shutting down gracefully", sig)

			// Disconnect realtime clients first so the open SSE handlers
			// unwind before the listener stops accepting.
			app.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("INFO: server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
