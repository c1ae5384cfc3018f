package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dealsync/internal/deal"
)

func tempRepo(t *testing.T) *FS {
	t.Helper()
	root := t.TempDir()
	fs, err := NewFS(
		filepath.Join(root, "Current Deals"),
		filepath.Join(root, "Previous Deals"),
		filepath.Join(root, "Archive"),
	)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func touch(t *testing.T, fs *FS, tier deal.Tier, name string) {
	t.Helper()
	if err := os.WriteFile(fs.Path(tier, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListSkipsLockFilesAndNonSpreadsheets(t *testing.T) {
	fs := tempRepo(t)
	touch(t, fs, deal.TierCurrent, "translate_quote_1_v1_all.xlsx")
	touch(t, fs, deal.TierCurrent, "~$translate_quote_1_v1_all.xlsx")
	touch(t, fs, deal.TierCurrent, "notes.txt")
	touch(t, fs, deal.TierCurrent, "UPPER_V2.XLSX")

	got, err := fs.List(deal.TierCurrent)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List = %v, want 2 entries", got)
	}
	if got[0] != "UPPER_V2.XLSX" || got[1] != "translate_quote_1_v1_all.xlsx" {
		t.Errorf("List = %v", got)
	}
}

func TestMoveReplacesExistingDestination(t *testing.T) {
	fs := tempRepo(t)
	touch(t, fs, deal.TierCurrent, "translate_quote_1_v1_all.xlsx")
	touch(t, fs, deal.TierArchive, "translate_quote_1_v1_all.xlsx")

	if err := fs.Move("translate_quote_1_v1_all.xlsx", deal.TierCurrent, deal.TierArchive); err != nil {
		t.Fatalf("Move: %v", err)
	}
	cur, _ := fs.List(deal.TierCurrent)
	if len(cur) != 0 {
		t.Errorf("Current still holds %v", cur)
	}
	arc, _ := fs.List(deal.TierArchive)
	if len(arc) != 1 {
		t.Errorf("Archive = %v, want exactly one copy", arc)
	}
}

func TestMoveMissingSource(t *testing.T) {
	fs := tempRepo(t)
	if err := fs.Move("gone.xlsx", deal.TierCurrent, deal.TierArchive); err == nil {
		t.Error("expected error moving missing file")
	}
}

func TestDelete(t *testing.T) {
	fs := tempRepo(t)
	touch(t, fs, deal.TierPrevious, "translate_quote_2_v1_all.xlsx")
	if err := fs.Delete(deal.TierPrevious, "translate_quote_2_v1_all.xlsx"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(fs.Path(deal.TierPrevious, "translate_quote_2_v1_all.xlsx")); !os.IsNotExist(err) {
		t.Error("file still present after delete")
	}
}
