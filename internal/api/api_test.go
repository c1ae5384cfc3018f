package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/runlog"
	"github.com/starford/dealsync/internal/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *runlog.DB, string) {
	t.Helper()
	repo, _ := testutil.TestRepo(t)

	work := t.TempDir()
	db, err := runlog.Open(filepath.Join(work, "runs.db"))
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reportPath := filepath.Join(work, "dashboard.txt")
	svc := NewService(db, repo, reportPath)
	srv := httptest.NewServer(NewRouter(svc))
	t.Cleanup(srv.Close)

	// Seed a deal document and a stray file for the tier census.
	detail := [][]string{{"Part", "Desc"}, {"P1", "Widget"}}
	testutil.WriteDealDocIn(t, repo, deal.TierCurrent, "Translate_Quote_9_v1.xlsx", "Acme", detail, nil)
	if err := os.WriteFile(repo.Path(deal.TierCurrent, "scratch.xlsx"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	return srv, db, reportPath
}

func TestRunsEndpoint(t *testing.T) {
	srv, db, _ := newTestServer(t)

	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := db.Record(runlog.Run{StartedAt: now, FinishedAt: now, Processed: i, Health: "HEALTHY"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	resp, err := http.Get(srv.URL + "/runs?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var runs []runlog.Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].Processed != 2 {
		t.Errorf("newest run first: Processed = %d, want 2", runs[0].Processed)
	}
}

func TestTiersEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/tiers")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var counts []TierCounts
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("len(counts) = %d, want 3", len(counts))
	}
	if counts[0].Tier != "Current" || counts[0].Documents != 1 || counts[0].Other != 1 {
		t.Errorf("current tier counts = %+v", counts[0])
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, _, reportPath := newTestServer(t)

	resp, err := http.Get(srv.URL + "/report")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing report: status = %d, want 404", resp.StatusCode)
	}

	if err := os.WriteFile(reportPath, []byte("# DEAL LEDGER DASHBOARD\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err = http.Get(srv.URL + "/report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
