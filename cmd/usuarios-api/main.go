// main is the entry point of the Usuarios API.
//
// STARTUP SEQUENCE:
//  1. Load configuration (.env, environment, optional YAML file)
//  2. Initialise the logger
//  3. Connect to the configured storage backend (MongoDB or SQLite)
//  4. Register all HTTP routes
//  5. Wrap the router in middleware and CORS
//  6. Start the HTTP server in a separate goroutine
//  7. Block until an OS signal (Ctrl+C / kill) arrives
//  8. Gracefully shut down: finish in-flight requests, close storage, exit
//
// RUNNING THE SERVER:
//
//	MONGO_URI=mongodb://localhost:27017 go run ./cmd/usuarios-api
//
// or, without a MongoDB server:
//
//	STORAGE_DRIVER=sqlite go run ./cmd/usuarios-api --config=config/local.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/aanand-mishra/usuarios-api/internal/config"
	"github.com/aanand-mishra/usuarios-api/internal/http/docs"
	"github.com/aanand-mishra/usuarios-api/internal/http/handlers/usuario"
	"github.com/aanand-mishra/usuarios-api/internal/http/middleware"
	"github.com/aanand-mishra/usuarios-api/internal/storage"
	"github.com/aanand-mishra/usuarios-api/internal/storage/mongodb"
	"github.com/aanand-mishra/usuarios-api/internal/storage/sqlite"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Handlers and middleware log through the package-level slog functions,
	// so the configured logger becomes the default.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting usuarios-api",
		slog.String("env", cfg.Env),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	store, err := openStorage(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("storage initialised", slog.String("driver", cfg.StorageDriver))

	// ── 4. Register HTTP Routes ───────────────────────────────────────────
	// Route table:
	//   POST   /api/usuarios                 → create a user
	//   GET    /api/usuarios?page=&limit=    → paginated list
	//   GET    /api/usuarios/buscar?ciudad=  → search by city
	//   GET    /api/usuarios/{id}            → get one user
	//   PUT    /api/usuarios/{id}            → full or partial update
	//   DELETE /api/usuarios/{id}            → delete a user
	//   GET    /api/health                   → storage reachability
	//   GET    /api-docs                     → OpenAPI document
	//   *      anything else                 → JSON 404
	router := http.NewServeMux()
	usuario.Register(router, store)
	router.HandleFunc("GET /api-docs", docs.Handler())

	// ── 5. Middleware ─────────────────────────────────────────────────────
	// Request id first so the access log and panic log can both read it.
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})
	handler := middleware.Chain(router,
		middleware.RequestID,
		middleware.Logging,
		middleware.Recover,
		c.Handler,
	)

	// ── 6. Create and Start the HTTP Server ───────────────────────────────
	addr := cfg.HTTPServer.ListenAddr()
	server := &http.Server{
		Addr:    addr,
		Handler: handler,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server started", slog.String("address", addr))

		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
	}

	if err := store.Close(ctx); err != nil {
		log.Error("failed to close storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// openStorage connects the backend named by cfg.StorageDriver. MongoDB is
// given QueryTimeout to connect and ping.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
		defer cancel()
		return mongodb.New(ctx, cfg)
	case config.DriverSQLite:
		return sqlite.New(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
