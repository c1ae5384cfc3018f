// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dealsync/internal/api"
	"github.com/starford/dealsync/internal/apperr"
	"github.com/starford/dealsync/internal/audit"
	"github.com/starford/dealsync/internal/cache"
	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/extract"
	"github.com/starford/dealsync/internal/ledger"
	"github.com/starford/dealsync/internal/pipeline"
	"github.com/starford/dealsync/internal/reconcile"
	"github.com/starford/dealsync/internal/runlog"
	"github.com/starford/dealsync/internal/sse"
	"github.com/starford/dealsync/internal/storage"
)

// watchSettle is how long the tier directories must stay quiet before a
// watcher-triggered sync starts. Office writes workbooks in several bursts.
const watchSettle = 2 * time.Second

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func buildRepo(cfg *Config) (*storage.FS, error) {
	repo, err := storage.NewFS(cfg.Repository.Current, cfg.Repository.Previous, cfg.Repository.Archive)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}
	return repo, nil
}

func buildRunner(cfg *Config, repo *storage.FS, logger *slog.Logger) (*pipeline.Runner, error) {
	c, err := cache.New(cfg.Ledger.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return &pipeline.Runner{
		Repo:             repo,
		Cache:            c,
		Extractor:        extract.XLSX{},
		LedgerPath:       cfg.Ledger.Path,
		BackupDir:        cfg.Ledger.BackupDir,
		HeaderSourcePath: cfg.Ledger.HeaderSource,
		ReportPath:       cfg.Ledger.Report,
		LockPath:         cfg.Ledger.Lock,
		Logger:           logger,
	}, nil
}

// recordRun appends the run to the SQLite run log. Failure to record never
// fails the run itself.
func recordRun(cfg *Config, logger *slog.Logger, stats *pipeline.Stats, moved int) {
	db, err := runlog.Open(cfg.Ledger.RunLog)
	if err != nil {
		logger.Warn("run log unavailable", slog.String("error", err.Error()))
		return
	}
	defer db.Close()

	err = db.Record(runlog.Run{
		StartedAt:    stats.StartedAt,
		FinishedAt:   stats.FinishedAt,
		Processed:    stats.Processed,
		Skipped:      stats.Skipped,
		CacheHits:    stats.CacheHits,
		Errored:      stats.Errored,
		Moved:        moved,
		HistoryAdded: stats.HistoryAdded,
		Health:       stats.Report.Health().String(),
	})
	if err != nil {
		logger.Warn("record run", slog.String("error", err.Error()))
	}
}

// RunSync performs one ledger synchronization pass and records it in the
// run log. retain caps record-table versions per deal base; limit caps the
// number of documents processed (zero means all).
func RunSync(cfg *Config, retain, limit int) error {
	logger := newLogger(cfg)

	repo, err := buildRepo(cfg)
	if err != nil {
		return err
	}
	runner, err := buildRunner(cfg, repo, logger)
	if err != nil {
		return err
	}

	stats, err := runner.Run(pipeline.Options{RetentionKeep: retain, Limit: limit})
	if err != nil {
		return err
	}
	recordRun(cfg, logger, stats, 0)
	return nil
}

// RunReconcile plans and applies the tier moves that restore the version
// layout: keep highest versions in Current, the runner-up in Previous, and
// everything older in Archive. With dryRun the plan is logged, not applied.
func RunReconcile(cfg *Config, keep int, dryRun bool) error {
	logger := newLogger(cfg)

	repo, err := buildRepo(cfg)
	if err != nil {
		return err
	}
	current, err := repo.List(deal.TierCurrent)
	if err != nil {
		return fmt.Errorf("list current tier: %w", err)
	}
	previous, err := repo.List(deal.TierPrevious)
	if err != nil {
		return fmt.Errorf("list previous tier: %w", err)
	}

	moves := reconcile.Plan(current, previous, keep)
	if len(moves) == 0 {
		logger.Info("reconcile: tiers already consistent")
		return nil
	}

	if dryRun {
		for _, m := range moves {
			logger.Info("reconcile: planned move",
				slog.String("name", m.Name),
				slog.String("from", m.From.String()),
				slog.String("to", m.To.String()),
				slog.Bool("delete", m.Delete),
				slog.String("reason", m.Reason))
		}
		return nil
	}

	applied, failed := reconcile.Apply(repo, moves, logger)
	logger.Info("reconcile: done", slog.Int("applied", applied), slog.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("reconcile: %d of %d moves failed", failed, applied+failed)
	}
	return nil
}

// RunAudit regenerates the consistency report from the existing ledger
// without modifying anything. The ledger must already exist.
func RunAudit(cfg *Config) error {
	logger := newLogger(cfg)

	repo, err := buildRepo(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Ledger.Path); err != nil {
		return fmt.Errorf("audit %s: %w", cfg.Ledger.Path, apperr.ErrLedgerMissing)
	}
	sets, err := ledger.ReadBaseSets(cfg.Ledger.Path)
	if err != nil {
		return err
	}

	current, err := parseTier(repo, deal.TierCurrent)
	if err != nil {
		return err
	}
	previous, err := parseTier(repo, deal.TierPrevious)
	if err != nil {
		return err
	}

	report := audit.Run(current, previous, sets)
	if err := report.Write(cfg.Ledger.Report); err != nil {
		return err
	}
	logger.Info("audit: report written",
		slog.String("path", cfg.Ledger.Report),
		slog.Int("issues", report.Issues()),
		slog.String("health", report.Health().String()))
	return nil
}

func parseTier(repo storage.Provider, t deal.Tier) ([]deal.Document, error) {
	names, err := repo.List(t)
	if err != nil {
		return nil, fmt.Errorf("list %s tier: %w", t, err)
	}
	var docs []deal.Document
	for _, name := range names {
		if base, ver, ok := deal.ParseName(name); ok {
			docs = append(docs, deal.Document{Name: name, Base: base, Version: ver, Tier: t})
		}
	}
	return docs, nil
}

// Run starts serve mode: a watcher over the Current and Previous tiers that
// reconciles and re-syncs after changes settle, plus the status HTTP API.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger
	if logger == nil {
		logger = newLogger(cfg)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("current_dir", cfg.Repository.Current),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	repo, err := buildRepo(cfg)
	if err != nil {
		return err
	}
	runner, err := buildRunner(cfg, repo, logger)
	if err != nil {
		return err
	}
	runs, err := runlog.Open(cfg.Ledger.RunLog)
	if err != nil {
		return fmt.Errorf("init run log: %w", err)
	}
	defer runs.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// One sync cycle: reconcile the tiers, then update the ledger. Cycles
	// are serialized; a watcher event during a cycle queues at the mutex.
	var cycleMu sync.Mutex
	cycle := func() {
		cycleMu.Lock()
		defer cycleMu.Unlock()

		moved := 0
		current, listErr := repo.List(deal.TierCurrent)
		if listErr != nil {
			logger.Error("cycle: list current tier", slog.String("error", listErr.Error()))
			return
		}
		previous, listErr := repo.List(deal.TierPrevious)
		if listErr != nil {
			logger.Error("cycle: list previous tier", slog.String("error", listErr.Error()))
			return
		}
		if moves := reconcile.Plan(current, previous, cfg.Retention.Keep); len(moves) > 0 {
			applied, failed := reconcile.Apply(repo, moves, logger)
			moved = applied
			if failed > 0 {
				logger.Warn("cycle: some moves failed", slog.Int("failed", failed))
			}
		}

		stats, runErr := runner.Run(pipeline.Options{RetentionKeep: cfg.Retention.Retain})
		if runErr != nil {
			logger.Error("cycle: sync failed", slog.String("error", runErr.Error()))
			return
		}
		run := runlog.Run{
			StartedAt:    stats.StartedAt,
			FinishedAt:   stats.FinishedAt,
			Processed:    stats.Processed,
			Skipped:      stats.Skipped,
			CacheHits:    stats.CacheHits,
			Errored:      stats.Errored,
			Moved:        moved,
			HistoryAdded: stats.HistoryAdded,
			Health:       stats.Report.Health().String(),
		}
		if recErr := runs.Record(run); recErr != nil {
			logger.Warn("cycle: record run", slog.String("error", recErr.Error()))
		}
		broker.PublishRun(run)
	}

	// Initial cycle on startup.
	cycle()

	// Build API service and router.
	svc := api.NewService(runs, repo, cfg.Ledger.Report)
	apiRouter := api.NewRouter(svc)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// SSE endpoint.
	r.Get("/api/events", broker.ServeHTTP)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start tier watcher.
	g.Go(func() error {
		dirs := []string{cfg.Repository.Current, cfg.Repository.Previous}
		return pipeline.Watch(gCtx, dirs, watchSettle, logger, cycle)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
