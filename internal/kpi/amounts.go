package kpi

import (
	"time"

	"debtster-kpi/internal/domain"

	"github.com/shopspring/decimal"
)

// AgentAmounts compares promised money with what was paid, split by status.
type AgentAmounts struct {
	Agent      string          `json:"agent"`
	Promised   decimal.Decimal `json:"promised"`
	Complete   decimal.Decimal `json:"complete"`
	Partial    decimal.Decimal `json:"partial"`
	Pending    decimal.Decimal `json:"pending"`
	Compliance float64         `json:"compliance"`
}

type PromisedPaid []AgentAmounts

// PromisedVsPaid sums promised amounts over every row of an agent and paid
// amounts per status. Compliance is (complete+partial)/promised*100, or 0 when
// nothing was promised.
func PromisedVsPaid(t *Table, f Filter) (PromisedPaid, error) {
	groups := map[string]*AgentAmounts{}
	err := t.scan(f, []Column{ColumnAgent, ColumnStatus, ColumnPromisedAmount, ColumnPaidAmount}, func(r domain.Record) {
		if r.Agent == "" {
			return
		}
		g, ok := groups[r.Agent]
		if !ok {
			g = &AgentAmounts{Agent: r.Agent}
			groups[r.Agent] = g
		}
		g.Promised = g.Promised.Add(r.PromisedAmount)
		switch r.Status {
		case domain.StatusComplete:
			g.Complete = g.Complete.Add(r.PaidAmount)
		case domain.StatusPartial:
			g.Partial = g.Partial.Add(r.PaidAmount)
		case domain.StatusPending:
			g.Pending = g.Pending.Add(r.PaidAmount)
		}
	})
	if err != nil {
		return nil, err
	}
	out := make(PromisedPaid, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		g.Compliance = percent(g.Complete.Add(g.Partial), g.Promised)
		out = append(out, *g)
	}
	return out, nil
}

func (p PromisedPaid) Summary() Summary {
	return tabulate([]column[AgentAmounts]{
		{"AGENT", func(a AgentAmounts) any { return a.Agent }},
		{"PROMISED AMOUNT", func(a AgentAmounts) any { return money(a.Promised) }},
		{"COMPLETE AMOUNT", func(a AgentAmounts) any { return money(a.Complete) }},
		{"PARTIAL AMOUNT", func(a AgentAmounts) any { return money(a.Partial) }},
		{"PENDING AMOUNT", func(a AgentAmounts) any { return money(a.Pending) }},
		{"% COMPLIANCE", func(a AgentAmounts) any { return round2(a.Compliance) }},
	}, p)
}

// DailyAmount is the money recovered on one calendar day.
type DailyAmount struct {
	Date  time.Time       `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type DailyTotals []DailyAmount

// DailyTotal sums paid amounts of COMPLETE and PARTIAL rows per payment day,
// oldest day first. Rows without a payment date are skipped.
func DailyTotal(t *Table, f Filter) (DailyTotals, error) {
	days := map[int]*DailyAmount{}
	err := t.scan(f, []Column{ColumnStatus, ColumnPaidAmount, ColumnPaymentDate}, func(r domain.Record) {
		if !r.Status.Paid() {
			return
		}
		day, ok := r.PaymentDay()
		if !ok {
			return
		}
		k := dayKey(day)
		g, ok := days[k]
		if !ok {
			g = &DailyAmount{Date: day}
			days[k] = g
		}
		g.Total = g.Total.Add(r.PaidAmount)
	})
	if err != nil {
		return nil, err
	}
	out := make(DailyTotals, 0, len(days))
	for _, k := range sortedKeys(days) {
		out = append(out, *days[k])
	}
	return out, nil
}

func (d DailyTotals) Summary() Summary {
	return tabulate([]column[DailyAmount]{
		{"DATE", func(a DailyAmount) any { return a.Date.Format("2006-01-02") }},
		{"TOTAL PAID", func(a DailyAmount) any { return money(a.Total) }},
	}, d)
}

// Overview holds headline totals across the filtered table.
type Overview struct {
	Records    int             `json:"records"`
	Promised   decimal.Decimal `json:"promised"`
	Paid       decimal.Decimal `json:"paid"`
	Compliance float64         `json:"compliance"`
}

// Totals sums promised and paid amounts over all filtered rows.
func Totals(t *Table, f Filter) (Overview, error) {
	var o Overview
	err := t.scan(f, []Column{ColumnPromisedAmount, ColumnPaidAmount}, func(r domain.Record) {
		o.Records++
		o.Promised = o.Promised.Add(r.PromisedAmount)
		o.Paid = o.Paid.Add(r.PaidAmount)
	})
	if err != nil {
		return Overview{}, err
	}
	o.Compliance = percent(o.Paid, o.Promised)
	return o, nil
}

func (o Overview) Summary() Summary {
	var items []Overview
	if o.Records > 0 {
		items = append(items, o)
	}
	return tabulate([]column[Overview]{
		{"RECORDS", func(o Overview) any { return o.Records }},
		{"PROMISED AMOUNT", func(o Overview) any { return money(o.Promised) }},
		{"PAID AMOUNT", func(o Overview) any { return money(o.Paid) }},
		{"% COMPLIANCE", func(o Overview) any { return round2(o.Compliance) }},
	}, items)
}
