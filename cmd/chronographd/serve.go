package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/chronograph-db/chronograph/internal/chrono/engine"
	"github.com/chronograph-db/chronograph/internal/chrono/query"
	"github.com/chronograph-db/chronograph/internal/chrono/schema"
	"github.com/chronograph-db/chronograph/internal/chrono/store"
	"github.com/chronograph-db/chronograph/internal/chrono/watch"
	"github.com/chronograph-db/chronograph/internal/server/api"
)

// ServeOptions holds flags for the serve command. Every flag falls back to
// an environment variable so the server runs unconfigured in containers.
type ServeOptions struct {
	*RootOptions
	Addr       string
	Backend    string
	DBPath     string
	SchemaPath string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chronograph HTTP server",
		Long: `Start the chronograph HTTP server.

The server validates mutations against the schema registry, appends version
records through the configured storage backend, and exposes current, as-of,
history, and traversal reads plus change subscriptions.

Example:
  chronographd serve --backend sqlite --db ./chronograph.db
  chronographd serve --backend badger --db ./data --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", getEnv("CHRONOGRAPH_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&opts.Backend, "backend", getEnv("CHRONOGRAPH_BACKEND", "sqlite"), "storage backend (sqlite|badger|neo4j)")
	cmd.Flags().StringVar(&opts.DBPath, "db", getEnv("CHRONOGRAPH_DB_PATH", "chronograph.db"), "database path for the sqlite and badger backends")
	cmd.Flags().StringVar(&opts.SchemaPath, "schema", getEnv("CHRONOGRAPH_SCHEMA", ""), "schema registry file (built-in default when empty)")
	cmd.Flags().StringVar(&opts.Neo4jURI, "neo4j-uri", getEnv("NEO4J_URI", "bolt://localhost:7687"), "neo4j connection URI")
	cmd.Flags().StringVar(&opts.Neo4jUser, "neo4j-user", getEnv("NEO4J_USER", "neo4j"), "neo4j username")
	cmd.Flags().StringVar(&opts.Neo4jPassword, "neo4j-password", getEnv("NEO4J_PASSWORD", ""), "neo4j password")

	return cmd
}

func runServe(opts *ServeOptions) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	reg, err := loadRegistry(opts.SchemaPath)
	if err != nil {
		return fmt.Errorf("loading schema registry: %w", err)
	}
	logger.Info("schema registry loaded",
		"strict", reg.Strict(),
		"node_labels", len(reg.NodeLabels()),
		"edge_types", len(reg.EdgeTypes()))

	ctx := context.Background()
	st, err := openStore(ctx, opts)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", opts.Backend, err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	eng := engine.New(st, reg, engine.DefaultConfig(), logger)
	qs := query.New(st)

	hub := watch.NewHub(logger)
	hub.Start()
	defer hub.Stop()

	apiServer := api.New(eng, qs, hub, logger)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", apiServer.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/schema", apiServer.GetSchema)

		r.Post("/nodes", apiServer.CreateNode)
		r.Get("/nodes/{id}", apiServer.GetNode)
		r.Patch("/nodes/{id}", apiServer.UpdateNode)
		r.Delete("/nodes/{id}", apiServer.DeleteNode)
		r.Get("/nodes/{id}/neighbors", apiServer.GetNeighbors)
		r.Get("/nodes/{id}/traverse", apiServer.Traverse)

		r.Post("/edges", apiServer.CreateEdge)
		r.Get("/edges/{id}", apiServer.GetEdge)
		r.Patch("/edges/{id}", apiServer.UpdateEdge)
		r.Delete("/edges/{id}", apiServer.DeleteEdge)

		r.Post("/composites", apiServer.CreateComposite)
		r.Get("/composites/{id}", apiServer.GetComposite)
		r.Delete("/composites/{id}", apiServer.DeleteComposite)

		r.Get("/entities/{id}", apiServer.GetEntity)
		r.Get("/entities/{id}/history", apiServer.GetHistory)

		r.Post("/subscriptions", apiServer.CreateSubscription)
		r.Get("/subscriptions", apiServer.ListSubscriptions)
		r.Get("/subscriptions/{id}", apiServer.GetSubscription)
		r.Patch("/subscriptions/{id}", apiServer.UpdateSubscription)
		r.Delete("/subscriptions/{id}", apiServer.DeleteSubscription)
	})

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting chronograph server", "addr", opts.Addr, "backend", opts.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return schema.Default(), nil
	}
	return schema.Load(path)
}

func openStore(ctx context.Context, opts *ServeOptions) (store.Store, error) {
	switch opts.Backend {
	case "sqlite":
		return store.NewSQLite(ctx, opts.DBPath)
	case "badger":
		return store.NewBadger(store.DefaultBadgerConfig(opts.DBPath))
	case "neo4j":
		return store.NewNeo4j(ctx, store.Neo4jConfig{
			URI:      opts.Neo4jURI,
			Username: opts.Neo4jUser,
			Password: opts.Neo4jPassword,
		})
	}
	return nil, fmt.Errorf("unknown backend %q (use sqlite, badger, or neo4j)", opts.Backend)
}
