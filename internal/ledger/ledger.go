// Package ledger maintains the durable multi-table deal ledger: detail and
// bundle record tables, the active-deal summary, the previous-deal summary,
// and the append-only deal history.
//
// The ledger is rebuilt wholesale from the current run's row set on every
// commit; only the history table is append-only. A timestamped backup is
// taken before any destructive rewrite, and a failed commit leaves that
// backup as the recovery point.
package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/schema"
)

// Sheet names inside the ledger workbook.
const (
	SheetDeals    = "Deals"
	SheetBundles  = "Bundles"
	SheetSummary  = "Summary"
	SheetPrevious = "Previous Deals"
	SheetHistory  = "Master Deal History"
)

// Status records which tier a deal document was observed in.
type Status string

const (
	StatusCurrent  Status = "Current"
	StatusPrevious Status = "Previous"
)

// StatusFor maps a tier to its history status label.
func StatusFor(t deal.Tier) Status {
	if t == deal.TierPrevious {
		return StatusPrevious
	}
	return StatusCurrent
}

var (
	summaryHeader  = []string{"DealBase", "Deal Name", "Version", "Customer", "Product Numbers?", "Bundles?"}
	previousHeader = []string{"DealBase", "Deal Name", "Version", "Customer", "Product Numbers?", "Bundles?", "Archived Date"}
	historyHeader  = []string{"DealBase", "Version", "Timestamp", "Status"}
)

// Note carries the per-document summary facts accumulated during a run.
type Note struct {
	Base      string
	Version   int
	Customer  string
	HasDetail bool
	HasBundle bool
	Tier      deal.Tier
}

type historyEntry struct {
	base    string
	version int
	at      time.Time
	status  Status
}

// Store is the ledger for one run. It accumulates rows, notes, and history
// in memory and writes everything back on Commit.
type Store struct {
	path      string
	backupDir string
	f         *excelize.File
	logger    *slog.Logger

	seen    map[string]struct{}
	pending []historyEntry
	rows    map[deal.Kind][]deal.Row
	notes   []Note

	now func() time.Time
}

// Open opens the ledger workbook, creating it with header-only tables when
// it does not exist yet. Open failures are fatal for the run.
func Open(path, backupDir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create backup dir: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create dir: %w", err)
		}
	}

	s := &Store{
		path:      path,
		backupDir: backupDir,
		logger:    logger,
		seen:      make(map[string]struct{}),
		rows:      make(map[deal.Kind][]deal.Row),
		now:       time.Now,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := excelize.NewFile()
		for _, sheet := range []string{SheetDeals, SheetBundles, SheetSummary, SheetPrevious, SheetHistory} {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("ledger: create sheet %s: %w", sheet, err)
			}
			if err := setRow(f, sheet, 1, headerFor(sheet)); err != nil {
				return nil, err
			}
		}
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("ledger: drop default sheet: %w", err)
		}
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("ledger: initialize %s: %w", path, err)
		}
		s.f = f
		return s, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	// Older ledgers may predate some tables.
	for _, sheet := range []string{SheetDeals, SheetBundles, SheetSummary, SheetPrevious, SheetHistory} {
		idx, err := f.GetSheetIndex(sheet)
		if err != nil {
			return nil, fmt.Errorf("ledger: inspect sheet %s: %w", sheet, err)
		}
		if idx >= 0 {
			continue
		}
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("ledger: add missing sheet %s: %w", sheet, err)
		}
		if err := setRow(f, sheet, 1, headerFor(sheet)); err != nil {
			return nil, err
		}
	}
	s.f = f

	if err := s.loadHistoryKeys(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying workbook.
func (s *Store) Close() error {
	return s.f.Close()
}

// Header returns the record table's persisted header row for a kind. The
// second return is false when the table carries no data rows: a header
// over an empty table is only the placeholder Open wrote and must not pin
// the schema for the run.
func (s *Store) Header(k deal.Kind) ([]string, bool) {
	sheet := SheetDeals
	if k == deal.KindBundle {
		sheet = SheetBundles
	}
	rows, err := s.f.GetRows(sheet)
	if err != nil || len(rows) < 2 || len(rows[0]) == 0 {
		return nil, false
	}
	return rows[0], true
}

// Ingest accumulates extracted rows for a record kind. Nothing is written
// until Commit.
func (s *Store) Ingest(k deal.Kind, rows []deal.Row) {
	s.rows[k] = append(s.rows[k], rows...)
}

// NoteDeal accumulates the summary facts for one observed document.
func (s *Store) NoteDeal(n Note) {
	s.notes = append(s.notes, n)
}

// RecordHistory appends a history entry unless the (base, version) pair has
// already been recorded, either in the ledger's lifetime or earlier in this
// run. Returns true when an entry was added.
func (s *Store) RecordHistory(base string, version int, status Status) bool {
	key := deal.HistoryKey(base, version)
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.pending = append(s.pending, historyEntry{base: base, version: version, at: s.now(), status: status})
	return true
}

// Commit writes the run's accumulated state back to the workbook: record
// tables are retention-trimmed and rewritten under the locker's headers,
// the summaries rebuilt, new history appended, and the file saved. A backup
// of the previous ledger is taken first. Commit failures are fatal for the
// run; the backup is the recovery point.
func (s *Store) Commit(retentionKeep int, locker *schema.Locker) error {
	if retentionKeep < 1 {
		retentionKeep = 1
	}

	if err := s.backup(); err != nil {
		return err
	}

	retained := make(map[deal.Kind][]deal.Row)
	for _, k := range []deal.Kind{deal.KindDetail, deal.KindBundle} {
		if len(s.rows[k]) > 0 && !locker.IsLocked(k) {
			s.logger.Warn("ledger: no schema locked, using default header",
				slog.String("kind", k.String()))
		}
		retained[k] = retain(s.rows[k], retentionKeep)
		sheet := SheetDeals
		if k == deal.KindBundle {
			sheet = SheetBundles
		}
		if err := s.rewriteSheet(sheet, locker.Schema(k), retained[k]); err != nil {
			return err
		}
	}

	if err := s.rewriteSheet(SheetSummary, summaryHeader, s.summaryRows(retained[deal.KindDetail], locker)); err != nil {
		return err
	}
	if err := s.rewriteSheet(SheetPrevious, previousHeader, s.previousRows()); err != nil {
		return err
	}
	if err := s.appendHistory(); err != nil {
		return err
	}

	if err := s.f.SaveAs(s.path); err != nil {
		return fmt.Errorf("ledger: commit %s: %w", s.path, err)
	}
	s.pending = nil
	return nil
}

// backup copies the on-disk ledger into the backup store with a timestamped
// name. No backup is taken when the ledger has not been written yet.
func (s *Store) backup() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: read for backup: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	name := fmt.Sprintf("%s_backup_%s.xlsx", base, s.now().Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(s.backupDir, name), data, 0o644); err != nil {
		return fmt.Errorf("ledger: write backup: %w", err)
	}
	return nil
}

// retain sorts rows by (base, version) and keeps only the retentionKeep
// highest distinct versions per deal base.
func retain(rows []deal.Row, retentionKeep int) []deal.Row {
	versions := make(map[string][]int)
	for _, r := range rows {
		base, ver, ok := rowKey(r)
		if !ok {
			continue
		}
		if !contains(versions[base], ver) {
			versions[base] = append(versions[base], ver)
		}
	}
	kept := make(map[string]map[int]struct{}, len(versions))
	for base, vers := range versions {
		sort.Sort(sort.Reverse(sort.IntSlice(vers)))
		top := make(map[int]struct{})
		for i, v := range vers {
			if i >= retentionKeep {
				break
			}
			top[v] = struct{}{}
		}
		kept[base] = top
	}

	var out []deal.Row
	for _, r := range rows {
		base, ver, ok := rowKey(r)
		if !ok {
			continue
		}
		if _, keep := kept[base][ver]; keep {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		bi, vi, _ := rowKey(out[i])
		bj, vj, _ := rowKey(out[j])
		if bi != bj {
			return bi < bj
		}
		return vi < vj
	})
	return out
}

// summaryRows builds the active-deal summary: the latest noted Current
// version per base, excluding deals whose End Date has already elapsed.
func (s *Store) summaryRows(detailRows []deal.Row, locker *schema.Locker) [][]interface{} {
	latest := make(map[string]Note)
	for _, n := range s.notes {
		if n.Tier != deal.TierCurrent {
			continue
		}
		if cur, ok := latest[n.Base]; !ok || n.Version > cur.Version {
			latest[n.Base] = n
		}
	}

	endIdx := columnIndex(locker.Schema(deal.KindDetail), "End Date")
	today := s.now().Truncate(24 * time.Hour)

	bases := make([]string, 0, len(latest))
	for base := range latest {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	var out [][]interface{}
	for _, base := range bases {
		n := latest[base]
		if endIdx >= 0 && elapsed(detailRows, n.Base, n.Version, endIdx, today) {
			continue
		}
		out = append(out, []interface{}{
			n.Base,
			fmt.Sprintf("%s v.%d", n.Base, n.Version),
			n.Version,
			n.Customer,
			flag(n.HasDetail),
			flag(n.HasBundle),
		})
	}
	return out
}

// previousRows builds the archived-tier summary from Previous-tier notes.
func (s *Store) previousRows() [][]interface{} {
	var notes []Note
	for _, n := range s.notes {
		if n.Tier == deal.TierPrevious {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Base != notes[j].Base {
			return notes[i].Base < notes[j].Base
		}
		return notes[i].Version < notes[j].Version
	})

	archived := s.now().Format("2006-01-02")
	var out [][]interface{}
	for _, n := range notes {
		out = append(out, []interface{}{
			n.Base,
			fmt.Sprintf("%s v.%d", n.Base, n.Version),
			n.Version,
			n.Customer,
			flag(n.HasDetail),
			flag(n.HasBundle),
			archived,
		})
	}
	return out
}

// appendHistory writes the run's new history entries after the existing
// rows. Existing entries are never touched.
func (s *Store) appendHistory() error {
	existing, err := s.f.GetRows(SheetHistory)
	if err != nil {
		return fmt.Errorf("ledger: read history: %w", err)
	}
	start := len(existing) + 1
	if len(existing) == 0 {
		if err := setRow(s.f, SheetHistory, 1, historyHeader); err != nil {
			return err
		}
		start = 2
	}
	for i, e := range s.pending {
		row := []interface{}{e.base, e.version, e.at.Format("2006-01-02 15:04:05"), string(e.status)}
		if err := setRowValues(s.f, SheetHistory, start+i, row); err != nil {
			return err
		}
	}
	return nil
}

// rewriteSheet replaces a sheet's full contents with a header and rows.
func (s *Store) rewriteSheet(sheet string, header []string, rows interface{}) error {
	if err := s.f.DeleteSheet(sheet); err != nil {
		return fmt.Errorf("ledger: clear sheet %s: %w", sheet, err)
	}
	if _, err := s.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("ledger: recreate sheet %s: %w", sheet, err)
	}
	if err := setRow(s.f, sheet, 1, header); err != nil {
		return err
	}
	switch data := rows.(type) {
	case []deal.Row:
		for i, r := range data {
			if err := setRow(s.f, sheet, i+2, r); err != nil {
				return err
			}
		}
	case [][]interface{}:
		for i, r := range data {
			if err := setRowValues(s.f, sheet, i+2, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) loadHistoryKeys() error {
	rows, err := s.f.GetRows(SheetHistory)
	if err != nil {
		return fmt.Errorf("ledger: read history: %w", err)
	}
	for i, r := range rows {
		if i == 0 || len(r) < 2 || r[0] == "" {
			continue
		}
		s.seen[r[0]+"_v"+r[1]] = struct{}{}
	}
	return nil
}

// BaseSets holds the deal bases present in each ledger summary table, for
// consistency auditing.
type BaseSets struct {
	Summary  map[string]struct{}
	Previous map[string]struct{}
	History  map[string]struct{}
}

// BaseSets reads the deal bases back out of the workbook's summary,
// previous, and history tables.
func (s *Store) BaseSets() (BaseSets, error) {
	return baseSets(s.f)
}

// ReadBaseSets opens an existing ledger read-only and returns its base
// sets. The ledger must already exist.
func ReadBaseSets(path string) (BaseSets, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return BaseSets{}, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()
	return baseSets(f)
}

func baseSets(f *excelize.File) (BaseSets, error) {
	sets := BaseSets{
		Summary:  make(map[string]struct{}),
		Previous: make(map[string]struct{}),
		History:  make(map[string]struct{}),
	}
	for sheet, set := range map[string]map[string]struct{}{
		SheetSummary:  sets.Summary,
		SheetPrevious: sets.Previous,
		SheetHistory:  sets.History,
	} {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return BaseSets{}, fmt.Errorf("ledger: read %s: %w", sheet, err)
		}
		for i, r := range rows {
			if i == 0 || len(r) == 0 || r[0] == "" {
				continue
			}
			set[r[0]] = struct{}{}
		}
	}
	return sets, nil
}

func headerFor(sheet string) []string {
	switch sheet {
	case SheetDeals:
		return schema.Default(deal.KindDetail)
	case SheetBundles:
		return schema.Default(deal.KindBundle)
	case SheetSummary:
		return summaryHeader
	case SheetPrevious:
		return previousHeader
	default:
		return historyHeader
	}
}

func rowKey(r deal.Row) (base string, version int, ok bool) {
	if len(r) < len(schema.Trailer) {
		return "", 0, false
	}
	base = r[len(r)-3]
	version, err := strconv.Atoi(r[len(r)-2])
	if err != nil {
		return "", 0, false
	}
	return base, version, true
}

// elapsed reports whether the End Date of the latest retained detail row
// for (base, version) lies strictly before today.
func elapsed(rows []deal.Row, base string, version int, endIdx int, today time.Time) bool {
	for _, r := range rows {
		b, v, ok := rowKey(r)
		if !ok || b != base || v != version {
			continue
		}
		if endIdx >= len(r) {
			return false
		}
		end, ok := parseDate(r[endIdx])
		return ok && end.Before(today)
	}
	return false
}

var dateLayouts = []string{"2006-01-02", "01-02-06", "1/2/2006", "01/02/2006", "2006-01-02 15:04:05"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func contains(vs []int, v int) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

func flag(b bool) string {
	if b {
		return "Y"
	}
	return ""
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	vals := make([]interface{}, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	return setRowValues(f, sheet, row, vals)
}

func setRowValues(f *excelize.File, sheet string, row int, vals []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("ledger: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("ledger: write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
