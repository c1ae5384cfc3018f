package cache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/dealsync/internal/deal"
)

const testDigest = "abc123"

func tempCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := tempCache(t)
	detail := []deal.Row{
		{"HP 250", "2Z9X1EA", "399.00", "12", "123", "2", "Acme Corp"},
		{"HP 250", "2Z9X2EA", "", "4", "123", "2", "Acme Corp"},
	}
	bundle := []deal.Row{{"Starter Kit", "2Z9X1EA", "123", "2", "Acme Corp"}}
	if err := c.Put("translate_quote_123_v2_all.xlsx", deal.KindDetail, testDigest, detail); err != nil {
		t.Fatalf("Put detail: %v", err)
	}
	if err := c.Put("translate_quote_123_v2_all.xlsx", deal.KindBundle, testDigest, bundle); err != nil {
		t.Fatalf("Put bundle: %v", err)
	}

	gotDetail, gotBundle, ok := c.Get("translate_quote_123_v2_all.xlsx", testDigest)
	if !ok {
		t.Fatal("Get: expected hit")
	}
	if !reflect.DeepEqual(gotDetail, detail) {
		t.Errorf("detail = %v, want %v", gotDetail, detail)
	}
	if !reflect.DeepEqual(gotBundle, bundle) {
		t.Errorf("bundle = %v, want %v", gotBundle, bundle)
	}
}

func TestGetMissingIsMiss(t *testing.T) {
	c := tempCache(t)
	if _, _, ok := c.Get("never_written.xlsx", testDigest); ok {
		t.Error("expected miss for absent document")
	}
}

func TestChangedDigestIsMiss(t *testing.T) {
	c := tempCache(t)
	rows := []deal.Row{{"a", "1", "1", "X"}}
	if err := c.Put("doc.xlsx", deal.KindDetail, testDigest, rows); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := c.Get("doc.xlsx", "different"); ok {
		t.Error("re-saved workbook must read as a miss")
	}
	if _, _, ok := c.Get("doc.xlsx", testDigest); !ok {
		t.Error("matching digest should still hit")
	}
}

func TestSingleKindDocumentHits(t *testing.T) {
	c := tempCache(t)
	rows := []deal.Row{{"a", "1", "1", "X"}}
	if err := c.Put("doc.xlsx", deal.KindDetail, testDigest, rows); err != nil {
		t.Fatal(err)
	}
	detail, bundle, ok := c.Get("doc.xlsx", testDigest)
	if !ok {
		t.Fatal("detail-only document should hit")
	}
	if detail == nil || bundle != nil {
		t.Errorf("detail = %v, bundle = %v; want rows and nil", detail, bundle)
	}
}

func TestCorruptArtifactInvalidatesDocument(t *testing.T) {
	c := tempCache(t)
	rows := []deal.Row{{"a", "1", "1", "X"}}
	if err := c.Put("doc.xlsx", deal.KindDetail, testDigest, rows); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("doc.xlsx", deal.KindBundle, testDigest, rows); err != nil {
		t.Fatal(err)
	}

	// Corrupt one kind only; the other artifact and the sidecar stay intact.
	path := filepath.Join(c.dir, "doc.xlsx_deals.csv.gz")
	if err := os.WriteFile(path, []byte("not gzip at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := c.Get("doc.xlsx", testDigest); ok {
		t.Fatal("a corrupt artifact must fail the whole document read")
	}
	// The entry was invalidated: the intact kind must also miss now, so a
	// later run re-extracts rather than serving a partial document.
	if _, err := os.Stat(c.sumPath("doc.xlsx")); !os.IsNotExist(err) {
		t.Error("digest sidecar should be removed after a decode failure")
	}
	if _, _, ok := c.Get("doc.xlsx", testDigest); ok {
		t.Error("document should stay a miss until rewritten")
	}
}

func TestEmptyPutIsNoOp(t *testing.T) {
	c := tempCache(t)
	if err := c.Put("doc.xlsx", deal.KindDetail, testDigest, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("empty put created %d entries", len(entries))
	}
}

func TestInvalidateDropsAllArtifacts(t *testing.T) {
	c := tempCache(t)
	rows := []deal.Row{{"a", "1", "1", "X"}}
	if err := c.Put("doc.xlsx", deal.KindDetail, testDigest, rows); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("doc.xlsx", deal.KindBundle, testDigest, rows); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate("doc.xlsx"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, _, ok := c.Get("doc.xlsx", testDigest); ok {
		t.Error("document should miss after invalidate")
	}

	// Invalidating again is a no-op.
	if err := c.Invalidate("doc.xlsx"); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
}
