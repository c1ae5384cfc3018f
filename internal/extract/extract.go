// Package extract reads record rows out of deal spreadsheet documents.
//
// A document carries up to two sheets of interest: "Product Numbers"
// (detail records, header on row 8, data from row 10) and "Bundles"
// (bundle records, header on row 8, data from row 9). The customer label
// lives in cell B4 of either sheet as free text ending "for <customer>".
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/starford/dealsync/internal/deal"
	"github.com/starford/dealsync/internal/schema"
)

const (
	detailSheet = "product numbers"
	bundleSheet = "bundles"

	headerRow     = 8  // 1-based row holding column names
	detailDataRow = 10 // first data row on the detail sheet
	bundleDataRow = 9  // first data row on the bundle sheet

	// UnknownCustomer is used when no customer label can be located.
	UnknownCustomer = "Unknown Customer"
)

// Result holds everything extracted from one document. Rows are already
// aligned to the locked schema and carry the trailer columns.
type Result struct {
	Detail    []deal.Row
	Bundle    []deal.Row
	Customer  string
	HasDetail bool
	HasBundle bool
}

// Extractor turns a document on disk into record rows. Implementations may
// fail per document; such failures are recoverable for the caller.
type Extractor interface {
	Extract(path string, doc deal.Document, locker *schema.Locker) (*Result, error)
}

// XLSX extracts rows from .xlsx workbooks.
type XLSX struct{}

// Extract opens the workbook at path and pulls detail and bundle rows,
// locking headers on the given Locker as a side effect when it holds the
// first usable header of the run.
func (XLSX) Extract(path string, doc deal.Document, locker *schema.Locker) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", doc.Name, err)
	}
	defer f.Close()

	sheets := make(map[string]string) // lowercased name → actual name
	for _, name := range f.GetSheetList() {
		sheets[strings.ToLower(name)] = name
	}

	res := &Result{Customer: UnknownCustomer}

	if name, ok := sheets[detailSheet]; ok {
		res.Customer = customerLabel(f, name)
	} else if name, ok := sheets[bundleSheet]; ok {
		res.Customer = customerLabel(f, name)
	}

	if name, ok := sheets[detailSheet]; ok {
		res.HasDetail = true
		rows, err := sheetRows(f, name, doc, locker, deal.KindDetail, detailDataRow, res.Customer)
		if err != nil {
			return nil, err
		}
		res.Detail = rows
	}

	if name, ok := sheets[bundleSheet]; ok {
		res.HasBundle = true
		rows, err := sheetRows(f, name, doc, locker, deal.KindBundle, bundleDataRow, res.Customer)
		if err != nil {
			return nil, err
		}
		res.Bundle = rows
	}

	return res, nil
}

// sheetRows reads one sheet's data region, locks its header if it is the
// first of the run, and shapes every non-blank row to the locked schema.
func sheetRows(f *excelize.File, sheet string, doc deal.Document, locker *schema.Locker, k deal.Kind, dataRow int, customer string) ([]deal.Row, error) {
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s sheet of %s: %w", k, doc.Name, err)
	}

	if len(all) >= headerRow {
		locker.Lock(k, all[headerRow-1], doc.Name)
	}
	cols := locker.Schema(k)
	width := len(cols) - len(schema.Trailer)

	var out []deal.Row
	if len(all) < dataRow {
		return nil, nil
	}
	for _, raw := range all[dataRow-1:] {
		if blankRow(raw) {
			continue
		}
		row := make(deal.Row, 0, len(cols))
		for i := 0; i < width; i++ {
			if i < len(raw) {
				row = append(row, raw[i])
			} else {
				row = append(row, "")
			}
		}
		row = append(row, doc.Base, strconv.Itoa(doc.Version), customer)
		out = append(out, row)
	}
	return out, nil
}

// customerLabel pulls the customer name out of cell B4, which reads like
// "Quote prepared for Acme Corp".
func customerLabel(f *excelize.File, sheet string) string {
	cell, err := f.GetCellValue(sheet, "B4")
	if err != nil || cell == "" {
		return UnknownCustomer
	}
	if i := strings.LastIndex(cell, "for "); i >= 0 {
		if name := strings.TrimSpace(cell[i+len("for "):]); name != "" {
			return name
		}
	}
	return UnknownCustomer
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
