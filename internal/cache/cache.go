// Package cache stores previously extracted record rows per document and
// record kind, so unchanged documents are not re-parsed on every run.
//
// Artifacts are gzip-compressed CSV files keyed by document name and kind,
// with a digest sidecar per document so a re-saved workbook invalidates its
// entries. Any read failure (missing file, stale digest, gzip or CSV
// corruption) is reported as a cache miss, never as an error: the caller
// falls back to re-extraction and rewrites the entry.
package cache

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/dealsync/internal/deal"
)

// Cache is a directory of per-(document, kind) row artifacts.
type Cache struct {
	dir string
}

// New creates the cache directory if needed and returns a Cache over it.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(docName string, k deal.Kind) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.csv.gz", docName, k))
}

func (c *Cache) sumPath(docName string) string {
	return filepath.Join(c.dir, docName+".sum")
}

// Get returns a document's cached rows for both kinds, provided the stored
// digest still matches the workbook's. ok is false on any miss. A missing
// per-kind artifact is not a failure (empty puts are no-ops, so absence
// means the kind had no rows), but an artifact that exists and fails to
// decode invalidates the whole document entry so the caller re-extracts
// instead of silently losing that kind's rows.
func (c *Cache) Get(docName, digest string) (detail, bundle []deal.Row, ok bool) {
	stored, err := os.ReadFile(c.sumPath(docName))
	if err != nil || string(stored) != digest {
		return nil, nil, false
	}

	detail, derr := c.read(docName, deal.KindDetail)
	bundle, berr := c.read(docName, deal.KindBundle)
	if derr != nil || berr != nil {
		_ = c.Invalidate(docName)
		return nil, nil, false
	}
	if detail == nil && bundle == nil {
		return nil, nil, false
	}
	return detail, bundle, true
}

// read decodes one kind's artifact. A missing file returns (nil, nil); any
// other failure is a decode error.
func (c *Cache) read(docName string, k deal.Kind) ([]deal.Row, error) {
	f, err := os.Open(c.path(docName, k))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: open artifact: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cache: gzip: %w", err)
	}
	defer zr.Close()

	r := csv.NewReader(zr)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cache: csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("cache: artifact %s_%s is empty", docName, k)
	}

	rows := make([]deal.Row, len(records))
	for i, rec := range records {
		rows[i] = deal.Row(rec)
	}
	return rows, nil
}

// Put writes rows for a document and kind, recording the workbook digest.
// An empty row set is a no-op so that absent data never creates an entry.
// The artifact is written to a temp file and renamed, so a partial write is
// never visible.
func (c *Cache) Put(docName string, k deal.Kind, digest string, rows []deal.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tmp, err := os.CreateTemp(c.dir, ".cache-tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := gzip.NewWriter(tmp)
	w := csv.NewWriter(zw)
	for _, row := range rows {
		if err := w.Write([]string(row)); err != nil {
			return fmt.Errorf("cache: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("cache: flush csv: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("cache: close gzip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, c.path(docName, k)); err != nil {
		return fmt.Errorf("cache: rename: %w", err)
	}
	if err := os.WriteFile(c.sumPath(docName), []byte(digest), 0o644); err != nil {
		return fmt.Errorf("cache: write digest: %w", err)
	}
	success = true
	return nil
}

// Invalidate drops every artifact of a document. Callers use it before
// re-extracting so a failed rewrite cannot leave one kind's rows paired
// with the other document version's digest.
func (c *Cache) Invalidate(docName string) error {
	for _, p := range []string{
		c.sumPath(docName),
		c.path(docName, deal.KindDetail),
		c.path(docName, deal.KindBundle),
	} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cache: invalidate %s: %w", docName, err)
		}
	}
	return nil
}
