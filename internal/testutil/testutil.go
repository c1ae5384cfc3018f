// Package testutil provides shared test helpers for building deal
// repositories and spreadsheet fixtures.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/storage"
)

// TestRepo creates a temporary three-tier repository and returns its
// provider along with the root directory.
func TestRepo(t *testing.T) (*storage.FS, string) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(
		filepath.Join(root, "Current Deals"),
		filepath.Join(root, "Previous Deals"),
		filepath.Join(root, "Archive"),
	)
	if err != nil {
		t.Fatalf("storage.NewFS: %v", err)
	}
	return fs, root
}

// WriteDealDoc writes a deal workbook to path. A non-nil detail/bundle
// slice creates the matching sheet with its first element as the header
// row (sheet row 8) and the rest as data rows (row 10 for detail, row 9
// for bundles). Cell B4 carries the customer label.
func WriteDealDoc(t *testing.T, path, customer string, detail, bundle [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if detail != nil {
		writeSheet(t, f, "Product Numbers", customer, detail, 10)
	}
	if bundle != nil {
		writeSheet(t, f, "Bundles", customer, bundle, 9)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		t.Fatalf("delete default sheet: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook %s: %v", path, err)
	}
}

// WriteDealDocIn writes a deal workbook named name into the given tier.
func WriteDealDocIn(t *testing.T, fs *storage.FS, tier deal.Tier, name, customer string, detail, bundle [][]string) {
	t.Helper()
	WriteDealDoc(t, fs.Path(tier, name), customer, detail, bundle)
}

func writeSheet(t *testing.T, f *excelize.File, sheet, customer string, rows [][]string, dataRow int) {
	t.Helper()
	if _, err := f.NewSheet(sheet); err != nil {
		t.Fatalf("new sheet %s: %v", sheet, err)
	}
	if err := f.SetCellValue(sheet, "B4", "Quote prepared for "+customer); err != nil {
		t.Fatal(err)
	}
	setRow(t, f, sheet, 8, rows[0])
	for i, row := range rows[1:] {
		setRow(t, f, sheet, dataRow+i, row)
	}
}

func setRow(t *testing.T, f *excelize.File, sheet string, rowNum int, cells []string) {
	t.Helper()
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		t.Fatal(err)
	}
	vals := make([]interface{}, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		t.Fatalf("set row %d on %s: %v", rowNum, sheet, err)
	}
}
