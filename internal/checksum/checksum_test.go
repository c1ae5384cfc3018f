package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSumIsStable(t *testing.T) {
	if Sum([]byte("abc")) != Sum([]byte("abc")) {
		t.Fatal("same bytes must produce the same digest")
	}
	if Sum([]byte("abc")) == Sum([]byte("abd")) {
		t.Fatal("different bytes must produce different digests")
	}
}

func TestFileMatchesSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xlsx")
	if err := os.WriteFile(path, []byte("workbook bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if want := Sum([]byte("workbook bytes")); got != want {
		t.Errorf("File = %s, want %s", got, want)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
