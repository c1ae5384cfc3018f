// Package schema captures and freezes the column layout used to merge
// heterogeneous deal documents into one wide ledger table per record kind.
package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/starford/dealsync/internal/deal"
)

// Trailer holds the three fixed columns appended to every locked schema.
var Trailer = []string{"DealBase", "Version", "Customer"}

// Default schemas used when no document in the run supplied a usable
// header row. Degraded but non-fatal.
var (
	defaultDetail = []string{"Product Family", "Product Number", "Dealer Net Price", "Remaining Qty", "DealBase", "Version", "Customer"}
	defaultBundle = []string{"Bundle Description", "Component 1", "Component 2", "DealBase", "Version", "Customer"}
)

// Default returns the fallback schema for a record kind.
func Default(k deal.Kind) []string {
	if k == deal.KindBundle {
		return append([]string(nil), defaultBundle...)
	}
	return append([]string(nil), defaultDetail...)
}

// Locker locks the first usable header row seen per record kind for the
// duration of a run. Once locked a schema never changes.
type Locker struct {
	schemas map[deal.Kind][]string
	sources map[deal.Kind]string
}

// NewLocker returns an unlocked Locker.
func NewLocker() *Locker {
	return &Locker{
		schemas: make(map[deal.Kind][]string),
		sources: make(map[deal.Kind]string),
	}
}

// Lock freezes header as the schema for kind k, provided no schema is
// locked yet and header contains at least one non-empty cell. Trailing
// empty cells are trimmed and the trailer columns appended. Returns true
// when this call performed the lock.
func (l *Locker) Lock(k deal.Kind, header []string, source string) bool {
	if _, locked := l.schemas[k]; locked {
		return false
	}
	trimmed := trimTrailingEmpty(header)
	if len(trimmed) == 0 {
		return false
	}
	l.schemas[k] = append(trimmed, Trailer...)
	l.sources[k] = source
	return true
}

// Restore re-locks a schema persisted by an earlier run, trailer included.
// Used when the run starts from cached rows and no document header will be
// seen: the tables must keep the columns they were written under. Returns
// false when a schema is already locked or the persisted header is too
// narrow to carry the trailer.
func (l *Locker) Restore(k deal.Kind, persisted []string, source string) bool {
	if _, locked := l.schemas[k]; locked {
		return false
	}
	if len(persisted) <= len(Trailer) {
		return false
	}
	l.schemas[k] = append([]string(nil), persisted...)
	l.sources[k] = source
	return true
}

// IsLocked reports whether a schema has been locked for kind k.
func (l *Locker) IsLocked(k deal.Kind) bool {
	_, ok := l.schemas[k]
	return ok
}

// Schema returns the locked schema for kind k, or the default schema when
// nothing has been locked.
func (l *Locker) Schema(k deal.Kind) []string {
	if s, ok := l.schemas[k]; ok {
		return s
	}
	return Default(k)
}

// Source returns the name of the document whose header was locked for k.
func (l *Locker) Source(k deal.Kind) string {
	return l.sources[k]
}

// WriteProvenance records which source document supplied each locked
// header, for traceability.
func (l *Locker) WriteProvenance(path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Deals Header Source: %s\n", l.sources[deal.KindDetail])
	fmt.Fprintf(&b, "Bundles Header Source: %s\n", l.sources[deal.KindBundle])
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("schema: write provenance: %w", err)
	}
	return nil
}

// ReadProvenance parses a provenance file back into per-kind source names,
// so a rerun that restores persisted schemas keeps the original attribution.
func ReadProvenance(path string) (map[deal.Kind]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read provenance: %w", err)
	}
	sources := make(map[deal.Kind]string)
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "Deals Header Source: "); ok {
			sources[deal.KindDetail] = rest
		}
		if rest, ok := strings.CutPrefix(line, "Bundles Header Source: "); ok {
			sources[deal.KindBundle] = rest
		}
	}
	return sources, nil
}

func trimTrailingEmpty(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	out := make([]string, 0, end)
	for _, c := range cells[:end] {
		out = append(out, strings.TrimSpace(c))
	}
	return out
}
