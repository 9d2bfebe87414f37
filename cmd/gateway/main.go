package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var (
		store  exam.Store
		events *syncx.EventRepo
	)
	if cfg.DBDriver == "memory" {
		store = exam.NewInMemoryStore()
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		defer dbh.Close()
		store = exam.NewSQLStore(dbh)
		if cfg.EnableEventLog {
			events = syncx.NewEventRepo(dbh, cfg.SiteID)
		}
	}

	opts := []exam.ServiceOption{
		exam.WithEngine(grading.NewEngine(grading.WithEssaysExcludedFromTotal(cfg.ExcludeEssaysFromTotal))),
	}
	var feed api.EventFeed
	if events != nil {
		opts = append(opts, exam.WithEvents(events))
		feed = events
	}
	svc := exam.NewService(store, opts...)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: cfg.Mode == config.ModeOnline,
		MaxAge:           300,
	}))

	r.Mount("/api", api.Routes(svc, feed))
	r.Get("/healthz", api.HealthHandler())
	r.Get("/readyz", api.ReadyHandler(svc))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
