// Package ingest reads uploaded payment-history workbooks into a record table.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"debtster-kpi/internal/domain"
	"debtster-kpi/internal/kpi"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoHeader        = errors.New("workbook has no recognizable header row")
	ErrUnsupportedFile = errors.New("unsupported file format, expected .xlsx")
)

type Options struct {
	// Sheet to read; the first sheet when empty.
	Sheet string
	// Location of naive date cells. UTC when nil.
	Location *time.Location
}

// Stats describes what happened while reading a workbook. Cells that could not
// be coerced are counted per column and otherwise treated as missing.
type Stats struct {
	Rows           int                `json:"rows"`
	BlankRows      int                `json:"blank_rows"`
	Invalid        map[kpi.Column]int `json:"invalid,omitempty"`
	IgnoredHeaders []string           `json:"ignored_headers,omitempty"`
}

func (s *Stats) invalid(c kpi.Column) {
	if s.Invalid == nil {
		s.Invalid = map[kpi.Column]int{}
	}
	s.Invalid[c]++
}

// InvalidCells is the total number of cells that failed coercion.
func (s Stats) InvalidCells() int {
	n := 0
	for _, v := range s.Invalid {
		n += v
	}
	return n
}

// ReadXLSX parses the workbook in r. Row 1 is the header; unknown headers are
// ignored and recorded in Stats.
func ReadXLSX(r io.Reader, opts Options) (*kpi.Table, Stats, error) {
	var stats Stats

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, stats, ErrNoHeader
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, stats, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, stats, ErrNoHeader
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	index := map[int]kpi.Column{}
	var columns []kpi.Column
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == "" {
			continue
		}
		c, ok := LookupColumn(h)
		if !ok || slices.Contains(columns, c) {
			stats.IgnoredHeaders = append(stats.IgnoredHeaders, h)
			continue
		}
		index[i] = c
		columns = append(columns, c)
	}
	if len(columns) == 0 {
		return nil, stats, ErrNoHeader
	}

	records := make([]domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			stats.BlankRows++
			continue
		}
		records = append(records, parseRow(row, index, loc, &stats))
		stats.Rows++
	}

	return kpi.NewTable(columns, records), stats, nil
}

func parseRow(row []string, index map[int]kpi.Column, loc *time.Location, stats *Stats) domain.Record {
	var rec domain.Record
	for i, c := range index {
		if i >= len(row) {
			continue
		}
		cell := row[i]
		ok := true
		switch c {
		case kpi.ColumnCaseID:
			rec.CaseID = strings.TrimSpace(cell)
		case kpi.ColumnAgent:
			rec.Agent = strings.TrimSpace(cell)
		case kpi.ColumnQueue:
			rec.Queue = strings.TrimSpace(cell)
		case kpi.ColumnStatus:
			rec.Status = domain.ParsePromiseStatus(cell)
		case kpi.ColumnPromisedAmount:
			rec.PromisedAmount, ok = parseAmount(cell)
		case kpi.ColumnPaidAmount:
			rec.PaidAmount, ok = parseAmount(cell)
		case kpi.ColumnPaymentDate:
			rec.PaidAt, ok = parseDate(cell, loc)
		case kpi.ColumnPromisedDate:
			rec.PromisedAt, ok = parseDate(cell, loc)
		case kpi.ColumnDaysOverdue:
			rec.DaysOverdue, ok = parseDays(cell)
		}
		if !ok {
			stats.invalid(c)
		}
	}
	return rec
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
