package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2/1/2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2006/1/2",
	"2006/1/2 15:04",
	"2006/1/2 15:04:05",
}

// Serial day numbers beyond this are not plausible spreadsheet dates.
const maxExcelSerial = 2958465

// parseAmount reads a money cell. ok is false for non-blank cells that are not
// numbers; blank and invalid cells both yield zero.
func parseAmount(raw string) (decimal.Decimal, bool) {
	if d, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
		return d, true
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',', r == '-':
			return r
		}
		return -1
	}, raw)
	if s == "" {
		return decimal.Zero, strings.TrimSpace(raw) == ""
	}
	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeSeparators rewrites grouping and decimal separators so that the
// result uses '.' for decimals only. The rightmost separator is the decimal
// one unless it is a comma followed by exactly three digits.
func normalizeSeparators(s string) string {
	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// parseDate reads a date cell written as text or as a spreadsheet serial.
func parseDate(raw string, loc *time.Location) (*time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, true
		}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 && v <= maxExcelSerial {
		t, err := excelize.ExcelDateToTime(v, false)
		if err != nil {
			return nil, false
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		return &t, true
	}
	return nil, false
}

func parseDays(raw string) (*int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n, true
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err == nil && !math.IsNaN(f) && math.Abs(f) <= math.MaxInt32 {
		n := int(f)
		return &n, true
	}
	return nil, false
}
