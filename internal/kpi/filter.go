package kpi

import (
	"time"

	"debtster-kpi/internal/domain"
)

// Filter narrows the table before aggregation. Zero fields do not restrict.
// From and To are inclusive calendar days over the payment date.
type Filter struct {
	From  *time.Time `json:"start_date,omitempty"`
	To    *time.Time `json:"end_date,omitempty"`
	Queue string     `json:"queue,omitempty"`
	Agent string     `json:"agent,omitempty"`
}

func (f Filter) IsZero() bool {
	return f.From == nil && f.To == nil && f.Queue == "" && f.Agent == ""
}

// columns lists the fields an active restriction reads.
func (f Filter) columns() []Column {
	var cols []Column
	if f.From != nil || f.To != nil {
		cols = append(cols, ColumnPaymentDate)
	}
	if f.Queue != "" {
		cols = append(cols, ColumnQueue)
	}
	if f.Agent != "" {
		cols = append(cols, ColumnAgent)
	}
	return cols
}

// Match reports whether r passes every active restriction. A row without a
// payment date never passes a date restriction.
func (f Filter) Match(r domain.Record) bool {
	if f.Queue != "" && r.Queue != f.Queue {
		return false
	}
	if f.Agent != "" && r.Agent != f.Agent {
		return false
	}
	if f.From == nil && f.To == nil {
		return true
	}
	if r.PaidAt == nil {
		return false
	}
	day := dayKey(*r.PaidAt)
	if f.From != nil && day < dayKey(*f.From) {
		return false
	}
	if f.To != nil && day > dayKey(*f.To) {
		return false
	}
	return true
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
