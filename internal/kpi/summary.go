package kpi

import (
	"cmp"
	"maps"
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

// Summary is the tabular projection of an aggregator result. An empty result
// keeps its column headers and has no rows.
type Summary struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (s Summary) Empty() bool { return len(s.Rows) == 0 }

type column[T any] struct {
	Header string
	Value  func(T) any
}

func tabulate[T any](cols []column[T], items []T) Summary {
	s := Summary{
		Columns: make([]string, len(cols)),
		Rows:    make([][]any, 0, len(items)),
	}
	for i, c := range cols {
		s.Columns[i] = c.Header
	}
	for _, it := range items {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = c.Value(it)
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

var hundred = decimal.NewFromInt(100)

// percent is num/den*100. A non-positive denominator or numerator yields 0.
func percent(num, den decimal.Decimal) float64 {
	if !den.IsPositive() || !num.IsPositive() {
		return 0
	}
	return num.Div(den).Mul(hundred).InexactFloat64()
}

func share(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func money(d decimal.Decimal) any {
	return d.Round(2).InexactFloat64()
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// ranked orders counts descending, breaking ties by key.
func ranked(m map[string]int) []string {
	keys := sortedKeys(m)
	slices.SortStableFunc(keys, func(a, b string) int { return m[b] - m[a] })
	return keys
}

// Summarizer is implemented by every aggregator result.
type Summarizer interface {
	Summary() Summary
}

// Summarize adapts a typed aggregator into one producing a Summary.
func Summarize[T Summarizer](fn func(*Table, Filter) (T, error)) func(*Table, Filter) (Summary, error) {
	return func(t *Table, f Filter) (Summary, error) {
		res, err := fn(t, f)
		if err != nil {
			return Summary{}, err
		}
		return res.Summary(), nil
	}
}
