// Package audit cross-checks the ledger's summary tables against the live
// Current and Previous tiers and classifies the repository's health. It is
// read-only apart from writing its report.
package audit

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/ledger"
)

// Health is the bounded classification of a report.
type Health int

const (
	Healthy Health = iota
	Degraded
	NeedsAttention
)

// String returns the health banner text.
func (h Health) String() string {
	switch h {
	case Healthy:
		return "HEALTHY"
	case Degraded:
		return "DEGRADED"
	default:
		return "NEEDS ATTENTION"
	}
}

// degradedLimit is the issue count at which health tips from degraded to
// needs-attention.
const degradedLimit = 5

// Report holds the consistency counts between filesystem tiers and ledger
// tables.
type Report struct {
	GeneratedAt time.Time

	CurrentFiles  int
	PreviousFiles int

	// Tier files whose deal base is absent from the matching ledger table.
	CurrentNotInSummary int
	PreviousNotInLedger int
	// Ledger entries with no corresponding tier file.
	SummaryWithoutFile  int
	PreviousWithoutFile int

	// Deal bases present in both tiers (informational, not an issue).
	SharedBases int
	// Exact (base, version) collisions across tiers: the true-duplicate
	// signal reconciliation should have resolved.
	TrueDuplicates int

	// Ledger deal bases that never reached the history table.
	MissingFromHistory int
}

// Issues returns the number of findings that count against health. Shared
// bases are informational only.
func (r Report) Issues() int {
	return r.CurrentNotInSummary +
		r.PreviousNotInLedger +
		r.SummaryWithoutFile +
		r.PreviousWithoutFile +
		r.TrueDuplicates +
		r.MissingFromHistory
}

// Health classifies the report: clean runs are healthy, a few minor issues
// degrade, and many issues or any true duplicate need attention.
func (r Report) Health() Health {
	issues := r.Issues()
	switch {
	case issues == 0:
		return Healthy
	case r.TrueDuplicates > 0 || issues >= degradedLimit:
		return NeedsAttention
	default:
		return Degraded
	}
}

// Run computes the consistency report for the given tier listings and
// ledger base sets.
func Run(current, previous []deal.Document, sets ledger.BaseSets) Report {
	r := Report{
		GeneratedAt:   time.Now(),
		CurrentFiles:  len(current),
		PreviousFiles: len(previous),
	}

	curBases := make(map[string]struct{}, len(current))
	curKeys := make(map[string]struct{}, len(current))
	for _, d := range current {
		curBases[d.Base] = struct{}{}
		curKeys[d.Key()] = struct{}{}
		if _, ok := sets.Summary[d.Base]; !ok {
			r.CurrentNotInSummary++
		}
	}

	prevBases := make(map[string]struct{}, len(previous))
	for _, d := range previous {
		prevBases[d.Base] = struct{}{}
		if _, ok := sets.Previous[d.Base]; !ok {
			r.PreviousNotInLedger++
		}
		if _, ok := curKeys[d.Key()]; ok {
			r.TrueDuplicates++
		}
	}

	for base := range curBases {
		if _, ok := prevBases[base]; ok {
			r.SharedBases++
		}
	}
	for base := range sets.Summary {
		if _, ok := curBases[base]; !ok {
			r.SummaryWithoutFile++
		}
	}
	for base := range sets.Previous {
		if _, ok := prevBases[base]; !ok {
			r.PreviousWithoutFile++
		}
	}

	all := make(map[string]struct{}, len(sets.Summary)+len(sets.Previous))
	for base := range sets.Summary {
		all[base] = struct{}{}
	}
	for base := range sets.Previous {
		all[base] = struct{}{}
	}
	for base := range all {
		if _, ok := sets.History[base]; !ok {
			r.MissingFromHistory++
		}
	}

	return r
}

// Render formats the report as the dashboard text.
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# DEAL LEDGER DASHBOARD - Generated on %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "## SUMMARY COUNTS\n")
	fmt.Fprintf(&b, "Current tier files: %d\n", r.CurrentFiles)
	fmt.Fprintf(&b, "Previous tier files: %d\n\n", r.PreviousFiles)

	fmt.Fprintf(&b, "## CONSISTENCY CHECKS\n")
	for _, line := range []struct {
		label string
		count int
	}{
		{"Current files missing from Summary", r.CurrentNotInSummary},
		{"Previous files missing from Previous Deals", r.PreviousNotInLedger},
		{"Summary entries without a Current file", r.SummaryWithoutFile},
		{"Previous Deals entries without a Previous file", r.PreviousWithoutFile},
		{"Deal bases present in both tiers", r.SharedBases},
		{"Exact (base, version) duplicates across tiers", r.TrueDuplicates},
		{"Ledger deal bases never reaching history", r.MissingFromHistory},
	} {
		fmt.Fprintf(&b, "%s: %d\n", line.label, line.count)
	}

	fmt.Fprintf(&b, "\n## HEALTH STATUS: %s\n", r.Health())
	switch r.Health() {
	case Healthy:
		fmt.Fprintf(&b, "All tier files are tracked in the ledger and all tables match folder contents.\n")
	case Degraded:
		fmt.Fprintf(&b, "Found %d minor inconsistencies that should be addressed.\n", r.Issues())
	default:
		if r.TrueDuplicates > 0 {
			fmt.Fprintf(&b, "Found %d files with identical versions in both tiers that require attention.\n", r.TrueDuplicates)
		}
		if other := r.Issues() - r.TrueDuplicates; other > 0 {
			fmt.Fprintf(&b, "Found %d other inconsistencies that require attention.\n", other)
		}
	}
	return b.String()
}

// Write renders the report to path.
func (r Report) Write(path string) error {
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return fmt.Errorf("audit: write report: %w", err)
	}
	return nil
}
