package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/medassist/triage/internal/api"
	"github.com/medassist/triage/internal/pipeline"
	"github.com/medassist/triage/internal/refdata"
	"github.com/medassist/triage/internal/shared/auth"
	"github.com/medassist/triage/internal/shared/config"
	"github.com/medassist/triage/internal/shared/database"
	"github.com/medassist/triage/internal/shared/events"
	"github.com/medassist/triage/internal/shared/metrics"
	secmiddleware "github.com/medassist/triage/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	DB       *database.DB
	Bus      events.EventBus
	Snapshot *refdata.Snapshot
}

func main() {
	ctx := context.Background()

	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	snapshot, db, err := loadSnapshot(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load reference data: %v\n", err)
		os.Exit(1)
	}
	app.Snapshot = snapshot
	if db != nil {
		app.DB = db
		defer db.Close()
	}
	fmt.Printf("Reference snapshot loaded: %v\n", snapshot.Counts())

	// Event bus is optional; without it pipeline events are dropped
	app.Bus = events.NoopBus{}
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(ctx, cfg.KurrentDB)
		if err != nil {
			fmt.Printf("Warning: KurrentDB not available: %v\n", err)
			fmt.Println("Running without event streaming...")
		} else {
			app.Bus = bus
			defer bus.Close()
			fmt.Println("KurrentDB Event Bus initialized")
		}
	}

	coordinator := pipeline.NewCoordinator(app.Snapshot, cfg.Triage)
	triageHandler := api.NewHandler(coordinator, app.Snapshot, app.Bus)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.RateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware(cfg.Auth))
		}
		r.Mount("/", triageHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("MedAssist Triage Service")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Refdata Source: %s\n", cfg.RefData.Source)
	fmt.Printf("Auth:           %v\n", cfg.Auth.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

// loadSnapshot builds the immutable reference snapshot from the configured
// source, falling back to the embedded seed dataset so the service can
// always start in limited mode.
func loadSnapshot(ctx context.Context, cfg *config.Config) (*refdata.Snapshot, *database.DB, error) {
	switch cfg.RefData.Source {
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			fmt.Printf("Warning: Database not available: %v\n", err)
			fmt.Println("Falling back to embedded seed dataset...")
			snapshot, seedErr := refdata.LoadSeed()
			return snapshot, nil, seedErr
		}
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
		snapshot, err := refdata.LoadFromPostgres(ctx, db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return snapshot, db, nil

	case "mssql":
		snapshot, err := refdata.LoadFromMSSQL(ctx, cfg.RefData.MSSQLDSN)
		if err != nil {
			fmt.Printf("Warning: HIS import failed: %v\n", err)
			fmt.Println("Falling back to embedded seed dataset...")
			snapshot, seedErr := refdata.LoadSeed()
			return snapshot, nil, seedErr
		}
		return snapshot, nil, nil

	default:
		snapshot, err := refdata.LoadSeed()
		return snapshot, nil, err
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "MedAssist Triage Service",
		"version": "0.1.0",
		"status":  "demonstration",
		"docs":    "/api/v1",
	})
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.Snapshot != nil {
			checks["refdata"] = "ready"
		} else {
			checks["refdata"] = "not ready: snapshot missing"
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
