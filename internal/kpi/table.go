// Package kpi turns a table of collection payment records into per-agent and
// per-queue performance summaries.
//
// Every aggregator is a pure function over a *Table and a Filter. Records are
// never modified; each call builds its result from scratch, so callers may run
// aggregators concurrently over the same table.
package kpi

import (
	"slices"
	"time"

	"debtster-kpi/internal/domain"
)

// Column identifies a semantic field of the record table.
type Column string

const (
	ColumnCaseID         Column = "case_id"
	ColumnAgent          Column = "agent"
	ColumnQueue          Column = "queue"
	ColumnPromisedAmount Column = "promised_amount"
	ColumnPaidAmount     Column = "paid_amount"
	ColumnStatus         Column = "promise_status"
	ColumnPaymentDate    Column = "payment_date"
	ColumnPromisedDate   Column = "promised_date"
	ColumnDaysOverdue    Column = "days_overdue"
)

// AllColumns lists every column in spreadsheet order.
var AllColumns = []Column{
	ColumnCaseID,
	ColumnAgent,
	ColumnQueue,
	ColumnPromisedAmount,
	ColumnPaidAmount,
	ColumnStatus,
	ColumnPaymentDate,
	ColumnPromisedDate,
	ColumnDaysOverdue,
}

var columnHeaders = map[Column]string{
	ColumnCaseID:         "CFRNID",
	ColumnAgent:          "AGENTE DE COBRANZA",
	ColumnQueue:          "FILA DE COBRANZA",
	ColumnPromisedAmount: "MONTO DE PAGO PROMETIDO",
	ColumnPaidAmount:     "MONTO DE PAGO",
	ColumnStatus:         "ESTADO DEL PAGO PROMETIDO",
	ColumnPaymentDate:    "FECHA",
	ColumnPromisedDate:   "HORA DE PAGO PROMETIDO",
	ColumnDaysOverdue:    "DIAS DE ATRASO EN EL MOMENTO DEL PAGO PROMETIDO",
}

// Header is the spreadsheet header users know the column by.
func (c Column) Header() string {
	if h, ok := columnHeaders[c]; ok {
		return h
	}
	return string(c)
}

func columnOrder(c Column) int {
	if i := slices.Index(AllColumns, c); i >= 0 {
		return i
	}
	return len(AllColumns)
}

// Table is the in-memory record table of one uploaded file.
type Table struct {
	present map[Column]struct{}
	records []domain.Record
}

// NewTable copies records into a new table. columns lists which fields the
// source actually carried; aggregators refuse to run without theirs.
func NewTable(columns []Column, records []domain.Record) *Table {
	t := &Table{
		present: make(map[Column]struct{}, len(columns)),
		records: slices.Clone(records),
	}
	for _, c := range columns {
		t.present[c] = struct{}{}
	}
	return t
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Columns returns the present columns in spreadsheet order.
func (t *Table) Columns() []Column {
	if t == nil {
		return nil
	}
	out := make([]Column, 0, len(t.present))
	for c := range t.present {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Column) int { return columnOrder(a) - columnOrder(b) })
	return out
}

func (t *Table) Has(cols ...Column) bool {
	return t.require(cols...) == nil
}

// Records returns a copy of the table rows.
func (t *Table) Records() []domain.Record {
	if t == nil {
		return nil
	}
	return slices.Clone(t.records)
}

// Agents returns the distinct non-empty agent names, sorted.
func (t *Table) Agents() []string {
	return t.distinct(func(r domain.Record) string { return r.Agent })
}

// Queues returns the distinct non-empty queue names, sorted.
func (t *Table) Queues() []string {
	return t.distinct(func(r domain.Record) string { return r.Queue })
}

func (t *Table) distinct(key func(domain.Record) string) []string {
	if t == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, r := range t.records {
		if k := key(r); k != "" {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// DateRange returns the earliest and latest payment dates, or nils when no
// row carries a usable date.
func (t *Table) DateRange() (from, to *time.Time) {
	if t == nil {
		return nil, nil
	}
	for _, r := range t.records {
		if r.PaidAt == nil {
			continue
		}
		p := *r.PaidAt
		if from == nil || p.Before(*from) {
			from = &p
		}
		if to == nil || p.After(*to) {
			q := p
			to = &q
		}
	}
	return from, to
}

func (t *Table) require(cols ...Column) error {
	var missing []Column
	for _, c := range cols {
		if t != nil {
			if _, ok := t.present[c]; ok {
				continue
			}
		}
		if !slices.Contains(missing, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.SortFunc(missing, func(a, b Column) int { return columnOrder(a) - columnOrder(b) })
	return &MissingColumnsError{Columns: missing}
}

// scan checks preconditions and feeds every row matching f into fn.
func (t *Table) scan(f Filter, required []Column, fn func(r domain.Record)) error {
	need := append(slices.Clone(required), f.columns()...)
	if err := t.require(need...); err != nil {
		return err
	}
	for _, r := range t.records {
		if f.Match(r) {
			fn(r)
		}
	}
	return nil
}

// Snapshot is the serializable form of a Table.
type Snapshot struct {
	Columns []Column        `json:"columns"`
	Records []domain.Record `json:"records"`
}

func (t *Table) Snapshot() Snapshot {
	return Snapshot{Columns: t.Columns(), Records: t.Records()}
}

func FromSnapshot(s Snapshot) *Table {
	return NewTable(s.Columns, s.Records)
}
