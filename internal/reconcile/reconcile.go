// Package reconcile enforces the tier invariants across the Current and
// Previous directories: Current holds at most the keep highest versions
// per deal base, Previous holds at most one version and only when it is
// exactly one below the Current maximum. Everything else is archived,
// demoted, or deleted.
package reconcile

import (
	"log/slog"
	"sort"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/storage"
)

// Move is one planned relocation or deletion. Delete moves have no
// destination tier.
type Move struct {
	Name   string
	From   deal.Tier
	To     deal.Tier
	Delete bool
	Reason string
}

// tierState maps deal base → version → filename for one tier.
type tierState map[string]map[int]string

// Group indexes a tier listing by deal base and version. Names that do
// not parse are ignored.
func Group(names []string) map[string]map[int]string {
	out := make(map[string]map[int]string)
	for _, name := range names {
		base, ver, ok := deal.ParseName(name)
		if !ok {
			continue
		}
		if out[base] == nil {
			out[base] = make(map[int]string)
		}
		out[base][ver] = name
	}
	return out
}

// Plan computes the moves and deletions required to restore the tier
// invariants, without touching the filesystem. keep is the number of
// highest versions retained in Current per deal base (minimum 1).
//
// The plan is evaluated per deal base:
//  1. A version present in both tiers is a true duplicate. The Previous
//     copy is archived when it matches the Current maximum (the Current
//     copy is authoritative); any other shared version is archived from
//     both tiers.
//  2. A Previous-only version other than currentMax−1 is non-sequential
//     and archived. Bases with no Current counterpart are left for the
//     cleanup pass.
//  3. Current versions outside the keep set are demoted to Previous when
//     they equal currentMax−1, otherwise archived as outdated.
//
// A final pass over the resulting Previous state deletes every version
// below the single highest one, since Previous holds exactly one file.
func Plan(currentNames, previousNames []string, keep int) []Move {
	if keep < 1 {
		keep = 1
	}
	cur := tierState(Group(currentNames))
	prev := tierState(Group(previousNames))

	var moves []Move

	for _, base := range sortedBases(cur, prev) {
		cvers := cur[base]
		pvers := prev[base]
		currentMax := maxVersion(cvers)

		// Shared versions between the two tiers.
		for _, v := range sortedVersions(pvers) {
			cname, shared := cvers[v]
			if !shared {
				continue
			}
			pname := pvers[v]
			if v == currentMax {
				moves = append(moves, Move{
					Name: pname, From: deal.TierPrevious, To: deal.TierArchive,
					Reason: "duplicate of current max, keeping Current",
				})
				delete(pvers, v)
				continue
			}
			moves = append(moves, Move{
				Name: pname, From: deal.TierPrevious, To: deal.TierArchive,
				Reason: "duplicate of a stale version",
			})
			moves = append(moves, Move{
				Name: cname, From: deal.TierCurrent, To: deal.TierArchive,
				Reason: "duplicate of a stale version",
			})
			delete(pvers, v)
			delete(cvers, v)
		}

		// Previous-only versions must sit exactly one below the Current
		// maximum. Bases absent from Current are left to the cleanup pass.
		if currentMax > 0 {
			for _, v := range sortedVersions(pvers) {
				if v == currentMax-1 {
					continue
				}
				moves = append(moves, Move{
					Name: pvers[v], From: deal.TierPrevious, To: deal.TierArchive,
					Reason: "non-sequential",
				})
				delete(pvers, v)
			}
		}

		// Current retention: keep the top versions, demote the immediate
		// predecessor of the maximum, archive the rest.
		ranked := sortedVersions(cvers)
		for i := len(ranked) - 1; i >= 0; i-- { // highest first
			rank := len(ranked) - 1 - i
			v := ranked[i]
			if rank < keep {
				continue
			}
			name := cvers[v]
			if v == currentMax-1 {
				moves = append(moves, Move{
					Name: name, From: deal.TierCurrent, To: deal.TierPrevious,
					Reason: "demoted to Previous",
				})
				if prev[base] == nil {
					prev[base] = make(map[int]string)
				}
				prev[base][v] = name
			} else {
				moves = append(moves, Move{
					Name: name, From: deal.TierCurrent, To: deal.TierArchive,
					Reason: "outdated in Current",
				})
			}
			delete(cvers, v)
		}
	}

	// Cleanup pass: Previous holds exactly one file per base, the highest.
	for _, base := range sortedBases(prev) {
		pvers := prev[base]
		top := maxVersion(pvers)
		for _, v := range sortedVersions(pvers) {
			if v < top {
				moves = append(moves, Move{
					Name: pvers[v], From: deal.TierPrevious, Delete: true,
					Reason: "older than latest in Previous",
				})
			}
		}
	}

	return moves
}

// Apply executes a plan against the repository. Individual failures are
// logged and skipped so one stuck file never aborts the batch; unmoved
// files are re-evaluated on the next run. Returns the number of applied
// and failed moves.
func Apply(repo storage.Provider, moves []Move, logger *slog.Logger) (applied, failed int) {
	for _, m := range moves {
		var err error
		if m.Delete {
			err = repo.Delete(m.From, m.Name)
		} else {
			err = repo.Move(m.Name, m.From, m.To)
		}
		if err != nil {
			failed++
			logger.Warn("reconcile: move failed",
				slog.String("name", m.Name),
				slog.String("reason", m.Reason),
				slog.String("error", err.Error()))
			continue
		}
		applied++
		if m.Delete {
			logger.Info("reconcile: deleted",
				slog.String("name", m.Name),
				slog.String("tier", m.From.String()),
				slog.String("reason", m.Reason))
		} else {
			logger.Info("reconcile: moved",
				slog.String("name", m.Name),
				slog.String("from", m.From.String()),
				slog.String("to", m.To.String()),
				slog.String("reason", m.Reason))
		}
	}
	return applied, failed
}

func sortedBases(states ...tierState) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, st := range states {
		for base := range st {
			if _, ok := seen[base]; ok {
				continue
			}
			seen[base] = struct{}{}
			out = append(out, base)
		}
	}
	sort.Strings(out)
	return out
}

func sortedVersions(vers map[int]string) []int {
	out := make([]int, 0, len(vers))
	for v := range vers {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func maxVersion(vers map[int]string) int {
	max := 0
	for v := range vers {
		if v > max {
			max = v
		}
	}
	return max
}
