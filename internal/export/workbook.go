// Package export renders a valuation as an Excel workbook.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/matthewbaird/valuation/internal/catalog"
	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/store"
)

// Sheet names.
const (
	SheetSummary   = "Summary"
	SheetValuation = "Valuation"
)

// ContentType is the media type of the rendered workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// summaryGroups are the catalog groups listed on the summary sheet.
var summaryGroups = []string{"valuationHeader", "clientDetails", "propertyDetails", "valuation.summary"}

// Workbook renders v. The caller must Close the returned file.
func Workbook(v store.Valuation) (*excelize.File, error) {
	f := excelize.NewFile()
	flat := form.Flatten(v.Record)

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming summary sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetValuation); err != nil {
		f.Close()
		return nil, fmt.Errorf("adding valuation sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating style: %w", err)
	}

	w := &sheetWriter{f: f, bold: bold}
	w.summary(v, flat)
	w.valuation(flat)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// sheetWriter keeps the first error so the layout code reads top to bottom.
type sheetWriter struct {
	f    *excelize.File
	bold int
	err  error
}

func (w *sheetWriter) set(sheet string, col, row int, value string) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStr(sheet, cell, value)
}

// num writes value as a number when it parses as one, else as text.
func (w *sheetWriter) num(sheet string, col, row int, value string) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || w.err != nil {
		w.set(sheet, col, row, value)
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellFloat(sheet, cell, n, -1, 64)
}

func (w *sheetWriter) heading(sheet string, row int, titles ...string) {
	for i, t := range titles {
		w.set(sheet, i+1, row, t)
	}
	if w.err != nil {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(titles), row)
	w.err = w.f.SetCellStyle(sheet, first, last, w.bold)
}

func (w *sheetWriter) summary(v store.Valuation, flat form.FlatRecord) {
	const sheet = SheetSummary
	row := 1
	w.heading(sheet, row, "Valuation", v.ReferenceNumber)
	row++
	for _, kv := range [][2]string{
		{"ID", v.ID},
		{"Status", v.Status},
		{"Version", strconv.Itoa(v.Version)},
		{"Created By", v.CreatedBy},
		{"Updated By", v.UpdatedBy},
		{"Created At", v.CreatedAt.UTC().Format(time.RFC3339)},
		{"Updated At", v.UpdatedAt.UTC().Format(time.RFC3339)},
		{"Manager Remarks", v.ManagerRemarks},
	} {
		w.set(sheet, 1, row, kv[0])
		w.set(sheet, 2, row, kv[1])
		row++
	}

	cat := catalog.Default()
	for _, group := range summaryGroups {
		row++
		w.heading(sheet, row, label(group[strings.LastIndex(group, ".")+1:]))
		row++
		for _, key := range cat.LeavesOfGroup(group) {
			w.set(sheet, 1, row, label(key))
			w.set(sheet, 2, row, flat.String(key))
			row++
		}
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(sheet, "A", "A", 34)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(sheet, "B", "B", 48)
	}
}

func (w *sheetWriter) valuation(flat form.FlatRecord) {
	const sheet = SheetValuation
	row := 1
	w.heading(sheet, row, "S.No", "Description", "Qty", "Rate", "Value")
	row++

	sno := 1
	for _, p := range derive.Pairs {
		w.set(sheet, 1, row, strconv.Itoa(sno))
		w.set(sheet, 2, row, label(p.Qty))
		w.num(sheet, 3, row, flat.String(p.Qty))
		w.num(sheet, 4, row, flat.String(p.Rate))
		w.num(sheet, 5, row, flat.String(p.Output))
		row++
		sno++
	}
	for _, it := range flat.Items(derive.FieldLineItems) {
		w.set(sheet, 1, row, strconv.Itoa(sno))
		w.set(sheet, 2, row, it.Description)
		w.num(sheet, 3, row, it.Qty)
		w.num(sheet, 4, row, it.Rate)
		w.num(sheet, 5, row, it.Value)
		row++
		sno++
	}

	row++
	w.set(sheet, 2, row, "Valuation Total")
	w.num(sheet, 5, row, flat.String(derive.FieldTotalValue))
	row++
	w.heading(sheet, row, "", "Grand Total")
	w.num(sheet, 5, row, derive.GrandTotal(flat))

	if w.err == nil {
		w.err = w.f.SetColWidth(sheet, "B", "B", 36)
	}
}

// label turns a camelCase key into title-cased words.
func label(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
