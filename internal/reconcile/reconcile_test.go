package reconcile

import (
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/storage"
)

func name(base string, ver int) string {
	return "translate_quote_" + base + "_v" + strconv.Itoa(ver) + "_all.xlsx"
}

func find(moves []Move, n string) *Move {
	for i := range moves {
		if moves[i].Name == n {
			return &moves[i]
		}
	}
	return nil
}

func TestPlanStaleDuplicateWithOldVersions(t *testing.T) {
	// Current: Q v1, v2, v3; Previous: Q v2; keep=1.
	current := []string{name("7", 1), name("7", 2), name("7", 3)}
	previous := []string{name("7", 2)}

	moves := Plan(current, previous, 1)
	if len(moves) != 3 {
		t.Fatalf("got %d moves: %v", len(moves), moves)
	}

	// v2 archived from both tiers as a stale duplicate.
	var prevDup, curDup bool
	for _, m := range moves {
		if m.Name == name("7", 2) && m.Reason == "duplicate of a stale version" {
			switch m.From {
			case deal.TierPrevious:
				prevDup = true
			case deal.TierCurrent:
				curDup = true
			}
			if m.To != deal.TierArchive || m.Delete {
				t.Errorf("duplicate move should archive: %+v", m)
			}
		}
	}
	if !prevDup || !curDup {
		t.Error("v2 must be archived from both tiers")
	}

	// v1 archived as outdated.
	m := find(moves, name("7", 1))
	if m == nil || m.From != deal.TierCurrent || m.To != deal.TierArchive || m.Reason != "outdated in Current" {
		t.Errorf("v1 move = %+v", m)
	}

	// v3 stays put.
	if find(moves, name("7", 3)) != nil {
		t.Error("current max must not move")
	}
}

func TestPlanSteadyStateIsQuiet(t *testing.T) {
	// Current v5, Previous v4: exactly one-less-than-max is valid.
	moves := Plan([]string{name("9", 5)}, []string{name("9", 4)}, 1)
	if len(moves) != 0 {
		t.Errorf("steady state produced moves: %v", moves)
	}
}

func TestPlanDuplicateOfCurrentMax(t *testing.T) {
	moves := Plan([]string{name("3", 4)}, []string{name("3", 4)}, 1)
	if len(moves) != 1 {
		t.Fatalf("moves = %v", moves)
	}
	m := moves[0]
	if m.From != deal.TierPrevious || m.To != deal.TierArchive || m.Reason != "duplicate of current max, keeping Current" {
		t.Errorf("move = %+v", m)
	}
}

func TestPlanDemotesPredecessorToPrevious(t *testing.T) {
	moves := Plan([]string{name("5", 7), name("5", 8)}, nil, 1)
	if len(moves) != 1 {
		t.Fatalf("moves = %v", moves)
	}
	m := moves[0]
	if m.From != deal.TierCurrent || m.To != deal.TierPrevious || m.Reason != "demoted to Previous" {
		t.Errorf("move = %+v", m)
	}
}

func TestPlanKeepTwoRetainsPredecessor(t *testing.T) {
	moves := Plan([]string{name("5", 7), name("5", 8)}, nil, 2)
	if len(moves) != 0 {
		t.Errorf("keep=2 should retain both versions: %v", moves)
	}
}

func TestPlanNonSequentialPrevious(t *testing.T) {
	moves := Plan([]string{name("2", 9)}, []string{name("2", 3)}, 1)
	if len(moves) != 1 {
		t.Fatalf("moves = %v", moves)
	}
	if moves[0].Reason != "non-sequential" || moves[0].To != deal.TierArchive {
		t.Errorf("move = %+v", moves[0])
	}
}

func TestPlanCleanupDeletesOlderPrevious(t *testing.T) {
	// No Current counterpart: Previous keeps only its single highest version.
	moves := Plan(nil, []string{name("4", 1), name("4", 2)}, 1)
	if len(moves) != 1 {
		t.Fatalf("moves = %v", moves)
	}
	m := moves[0]
	if !m.Delete || m.From != deal.TierPrevious || m.Name != name("4", 1) {
		t.Errorf("move = %+v", m)
	}
}

func TestPlanCleanupSeesDemotions(t *testing.T) {
	// v6 demotes into Previous, which already holds v4; v4 must be deleted,
	// not kept beside the demoted file.
	moves := Plan([]string{name("6", 6), name("6", 7)}, []string{name("6", 4)}, 1)

	demoted := find(moves, name("6", 6))
	if demoted == nil || demoted.To != deal.TierPrevious {
		t.Fatalf("expected demotion of v6: %v", moves)
	}
	// v4 is non-sequential versus currentMax 7.
	old := find(moves, name("6", 4))
	if old == nil || old.To != deal.TierArchive || old.Reason != "non-sequential" {
		t.Errorf("v4 move = %+v", old)
	}
}

func TestPlanIgnoresUnparseableNames(t *testing.T) {
	moves := Plan([]string{"translate_quote_1.xlsx", "notes.xlsx"}, nil, 1)
	if len(moves) != 0 {
		t.Errorf("unparseable names produced moves: %v", moves)
	}
}

func TestApplyExecutesAndEmptiesPrevious(t *testing.T) {
	repo := tempFS(t)
	write(t, repo, deal.TierCurrent, name("7", 1))
	write(t, repo, deal.TierCurrent, name("7", 2))
	write(t, repo, deal.TierCurrent, name("7", 3))
	write(t, repo, deal.TierPrevious, name("7", 2))

	cur, _ := repo.List(deal.TierCurrent)
	prev, _ := repo.List(deal.TierPrevious)
	moves := Plan(cur, prev, 1)

	applied, failed := Apply(repo, moves, discard())
	if failed != 0 || applied != len(moves) {
		t.Fatalf("applied=%d failed=%d of %d", applied, failed, len(moves))
	}

	cur, _ = repo.List(deal.TierCurrent)
	if len(cur) != 1 || cur[0] != name("7", 3) {
		t.Errorf("Current = %v, want only v3", cur)
	}
	prev, _ = repo.List(deal.TierPrevious)
	if len(prev) != 0 {
		t.Errorf("Previous = %v, want empty", prev)
	}
	arc, _ := repo.List(deal.TierArchive)
	if len(arc) != 2 {
		t.Errorf("Archive = %v, want v1 and v2", arc)
	}
}

func TestApplyToleratesFailures(t *testing.T) {
	repo := tempFS(t)
	write(t, repo, deal.TierCurrent, name("8", 2))
	moves := []Move{
		{Name: "missing.xlsx", From: deal.TierPrevious, To: deal.TierArchive, Reason: "x"},
		{Name: name("8", 2), From: deal.TierCurrent, To: deal.TierArchive, Reason: "y"},
	}
	applied, failed := Apply(repo, moves, discard())
	if applied != 1 || failed != 1 {
		t.Errorf("applied=%d failed=%d, want 1/1", applied, failed)
	}
}

func tempFS(t *testing.T) *storage.FS {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root+"/Current Deals", root+"/Previous Deals", root+"/Archive")
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func write(t *testing.T, fs *storage.FS, tier deal.Tier, n string) {
	t.Helper()
	if err := os.WriteFile(fs.Path(tier, n), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
