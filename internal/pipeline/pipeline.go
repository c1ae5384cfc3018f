// Package pipeline orchestrates one ledger-synchronization run: list the
// tiers, parse document names, serve rows from cache or extraction, merge
// everything into the ledger, and audit the result.
package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/dealsync/internal/audit"
	"github.com/starford/dealsync/internal/cache"
	"github.com/starford/dealsync/internal/checksum"
	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/extract"
	"github.com/starford/dealsync/internal/ledger"
	"github.com/starford/dealsync/internal/schema"
	"github.com/starford/dealsync/internal/storage"
)

// Runner wires the collaborators for a sync run.
type Runner struct {
	Repo      storage.Provider
	Cache     *cache.Cache
	Extractor extract.Extractor

	LedgerPath       string
	BackupDir        string
	HeaderSourcePath string
	ReportPath       string
	LockPath         string

	Logger *slog.Logger
}

// Options tune a single run.
type Options struct {
	// RetentionKeep is the number of highest versions per deal base kept
	// in the record tables.
	RetentionKeep int
	// Limit caps the number of documents processed; zero means all.
	Limit int
}

// Stats summarizes what one run did. Every run returns stats, even when
// individual documents failed.
type Stats struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	Processed    int
	Skipped      int
	CacheHits    int
	Errored      int
	HistoryAdded int
	Report       audit.Report
}

// Run executes one full synchronization. Per-document failures are logged
// and skipped; only lock acquisition, tier listing, and ledger open/commit
// errors are fatal.
func (r *Runner) Run(opts Options) (*Stats, error) {
	stats := &Stats{StartedAt: time.Now()}

	release, err := AcquireLock(r.LockPath)
	if err != nil {
		return nil, err
	}
	defer release()

	curDocs, err := r.listTier(deal.TierCurrent, stats)
	if err != nil {
		return nil, err
	}
	prevDocs, err := r.listTier(deal.TierPrevious, stats)
	if err != nil {
		return nil, err
	}

	docs := mergeDocs(curDocs, prevDocs)
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}

	store, err := ledger.Open(r.LedgerPath, r.BackupDir, r.Logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	locker := schema.NewLocker()
	r.restoreSchemas(store, locker)

	for _, doc := range docs {
		r.processDoc(doc, store, locker, stats)
	}

	if err := store.Commit(opts.RetentionKeep, locker); err != nil {
		return stats, err
	}

	if err := locker.WriteProvenance(r.HeaderSourcePath); err != nil {
		r.Logger.Warn("pipeline: header provenance", slog.String("error", err.Error()))
	}

	if sets, err := store.BaseSets(); err != nil {
		r.Logger.Warn("pipeline: audit read-back failed", slog.String("error", err.Error()))
	} else {
		stats.Report = audit.Run(curDocs, prevDocs, sets)
		if err := stats.Report.Write(r.ReportPath); err != nil {
			r.Logger.Warn("pipeline: write report", slog.String("error", err.Error()))
		}
	}

	stats.FinishedAt = time.Now()
	r.Logger.Info("pipeline: run complete",
		slog.Int("processed", stats.Processed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("cache_hits", stats.CacheHits),
		slog.Int("errored", stats.Errored),
		slog.Int("history_added", stats.HistoryAdded),
		slog.String("health", stats.Report.Health().String()))
	return stats, nil
}

// processDoc handles one document: cache hit, or extraction with a cache
// rewrite. Failures skip the document; it contributes no rows and no
// history this run and is retried next run.
func (r *Runner) processDoc(doc deal.Document, store *ledger.Store, locker *schema.Locker, stats *Stats) {
	path := r.Repo.Path(doc.Tier, doc.Name)
	digest, err := checksum.File(path)
	if err != nil {
		stats.Errored++
		r.Logger.Warn("pipeline: unreadable document",
			slog.String("document", doc.Name),
			slog.String("error", err.Error()))
		return
	}

	detailRows, bundleRows, hit := r.Cache.Get(doc.Name, digest)

	note := ledger.Note{Base: doc.Base, Version: doc.Version, Tier: doc.Tier}

	if hit {
		stats.CacheHits++
		note.Customer = customerFromRows(detailRows, bundleRows)
		note.HasDetail = len(detailRows) > 0
		note.HasBundle = len(bundleRows) > 0
		store.Ingest(deal.KindDetail, detailRows)
		store.Ingest(deal.KindBundle, bundleRows)
	} else {
		res, err := r.Extractor.Extract(path, doc, locker)
		if err != nil {
			stats.Errored++
			r.Logger.Warn("pipeline: extraction failed",
				slog.String("document", doc.Name),
				slog.String("error", err.Error()))
			return
		}
		note.Customer = res.Customer
		note.HasDetail = res.HasDetail
		note.HasBundle = res.HasBundle
		store.Ingest(deal.KindDetail, res.Detail)
		store.Ingest(deal.KindBundle, res.Bundle)
		if err := r.Cache.Invalidate(doc.Name); err != nil {
			r.Logger.Warn("pipeline: cache invalidate", slog.String("document", doc.Name), slog.String("error", err.Error()))
		}
		if err := r.Cache.Put(doc.Name, deal.KindDetail, digest, res.Detail); err != nil {
			r.Logger.Warn("pipeline: cache write", slog.String("document", doc.Name), slog.String("error", err.Error()))
		}
		if err := r.Cache.Put(doc.Name, deal.KindBundle, digest, res.Bundle); err != nil {
			r.Logger.Warn("pipeline: cache write", slog.String("document", doc.Name), slog.String("error", err.Error()))
		}
	}

	store.NoteDeal(note)
	if store.RecordHistory(doc.Base, doc.Version, ledger.StatusFor(doc.Tier)) {
		stats.HistoryAdded++
	}
	stats.Processed++
}

// restoreSchemas re-locks the headers an earlier run committed to the
// record tables, with their provenance read back from the header-source
// artifact. Without this a fully-cached run would rewrite the tables under
// the default headers, since no extraction happens to lock a schema.
func (r *Runner) restoreSchemas(store *ledger.Store, locker *schema.Locker) {
	sources, err := schema.ReadProvenance(r.HeaderSourcePath)
	if err != nil {
		sources = map[deal.Kind]string{}
	}
	for _, k := range []deal.Kind{deal.KindDetail, deal.KindBundle} {
		if header, ok := store.Header(k); ok {
			locker.Restore(k, header, sources[k])
		}
	}
}

// listTier returns the parsed deal documents of a tier. Unparseable names
// are counted as skipped, not errors.
func (r *Runner) listTier(t deal.Tier, stats *Stats) ([]deal.Document, error) {
	names, err := r.Repo.List(t)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list %s tier: %w", t, err)
	}
	var docs []deal.Document
	for _, name := range names {
		base, ver, ok := deal.ParseName(name)
		if !ok {
			stats.Skipped++
			r.Logger.Debug("pipeline: not a deal document", slog.String("name", name))
			continue
		}
		docs = append(docs, deal.Document{Name: name, Base: base, Version: ver, Tier: t})
	}
	return docs, nil
}

// mergeDocs combines both tier listings into one name-sorted work list.
// When the same filename exists in both tiers the Current copy wins.
func mergeDocs(current, previous []deal.Document) []deal.Document {
	seen := make(map[string]struct{}, len(current))
	out := make([]deal.Document, 0, len(current)+len(previous))
	for _, d := range current {
		seen[d.Name] = struct{}{}
		out = append(out, d)
	}
	for _, d := range previous {
		if _, dup := seen[d.Name]; dup {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// customerFromRows recovers the customer label from a cached row's trailer.
func customerFromRows(rowSets ...[]deal.Row) string {
	for _, rows := range rowSets {
		if len(rows) > 0 && len(rows[0]) > 0 {
			return rows[0][len(rows[0])-1]
		}
	}
	return extract.UnknownCustomer
}
