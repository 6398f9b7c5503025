package kpi

import (
	"cmp"
	"slices"

	"debtster-kpi/internal/domain"

	"github.com/shopspring/decimal"
)

// AgentSettlement holds DSO, recovery and settlement figures of one agent.
type AgentSettlement struct {
	Agent          string          `json:"agent"`
	Promised       decimal.Decimal `json:"promised"`
	Paid           decimal.Decimal `json:"paid"`
	DSO            float64         `json:"dso"`
	Settled        int             `json:"settled"`
	RecoveryRate   float64         `json:"recovery_rate"`
	SettlementRate float64         `json:"settlement_rate"`
}

type Settlement []AgentSettlement

// DSORecoverySettlement covers COMPLETE and PARTIAL rows with a positive
// promised amount. DSO is the mean days between promise and payment over the
// rows carrying both dates; recovery is paid/promised*100; settlement is the
// agent's share of all settled promises.
func DSORecoverySettlement(t *Table, f Filter) (Settlement, error) {
	type acc struct {
		AgentSettlement
		days, dated int
	}
	groups := map[string]*acc{}
	total := 0
	required := []Column{ColumnStatus, ColumnAgent, ColumnPromisedAmount, ColumnPaidAmount, ColumnPaymentDate, ColumnPromisedDate}
	err := t.scan(f, required, func(r domain.Record) {
		if r.Agent == "" || !r.Status.Paid() || !r.PromisedAmount.IsPositive() {
			return
		}
		g, ok := groups[r.Agent]
		if !ok {
			g = &acc{AgentSettlement: AgentSettlement{Agent: r.Agent}}
			groups[r.Agent] = g
		}
		g.Promised = g.Promised.Add(r.PromisedAmount)
		g.Paid = g.Paid.Add(r.PaidAmount)
		g.Settled++
		total++
		if late, ok := r.DaysLate(); ok {
			g.days += late
			g.dated++
		}
	})
	if err != nil {
		return nil, err
	}
	out := make(Settlement, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		g.DSO = mean(float64(g.days), g.dated)
		g.RecoveryRate = percent(g.Paid, g.Promised)
		g.SettlementRate = share(g.Settled, total)
		out = append(out, g.AgentSettlement)
	}
	return out, nil
}

func (s Settlement) Summary() Summary {
	return tabulate([]column[AgentSettlement]{
		{"AGENT", func(a AgentSettlement) any { return a.Agent }},
		{"PROMISED", func(a AgentSettlement) any { return money(a.Promised) }},
		{"PAID", func(a AgentSettlement) any { return money(a.Paid) }},
		{"DSO", func(a AgentSettlement) any { return round2(a.DSO) }},
		{"SETTLED PROMISES", func(a AgentSettlement) any { return a.Settled }},
		{"RECOVERY RATE (%)", func(a AgentSettlement) any { return round2(a.RecoveryRate) }},
		{"SETTLEMENT RATE (%)", func(a AgentSettlement) any { return round2(a.SettlementRate) }},
	}, s)
}

// AgentLateness holds the average collection period and late payment rate
// of one agent.
type AgentLateness struct {
	Agent    string  `json:"agent"`
	ACP      float64 `json:"acp"`
	LPR      float64 `json:"lpr"`
	Payments int     `json:"payments"`
}

type Lateness []AgentLateness

// LatePaymentRates computes, over COMPLETE and PARTIAL rows, the mean days
// late (ACP) and the percentage of payments made after the promised date
// (LPR). ACP averages only rows with both dates; a row missing a date counts
// as on time for LPR.
func LatePaymentRates(t *Table, f Filter) (Lateness, error) {
	type acc struct {
		days, dated, late, n int
	}
	groups := map[string]*acc{}
	err := t.scan(f, []Column{ColumnStatus, ColumnAgent, ColumnPaymentDate, ColumnPromisedDate}, func(r domain.Record) {
		if r.Agent == "" || !r.Status.Paid() {
			return
		}
		g, ok := groups[r.Agent]
		if !ok {
			g = &acc{}
			groups[r.Agent] = g
		}
		g.n++
		d, ok := r.DaysLate()
		if !ok {
			return
		}
		g.dated++
		g.days += d
		if d > 0 {
			g.late++
		}
	})
	if err != nil {
		return nil, err
	}
	out := make(Lateness, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		out = append(out, AgentLateness{
			Agent:    k,
			ACP:      mean(float64(g.days), g.dated),
			LPR:      share(g.late, g.n),
			Payments: g.n,
		})
	}
	return out, nil
}

func (l Lateness) Summary() Summary {
	return tabulate([]column[AgentLateness]{
		{"AGENT", func(a AgentLateness) any { return a.Agent }},
		{"ACP", func(a AgentLateness) any { return round2(a.ACP) }},
		{"LPR (%)", func(a AgentLateness) any { return round2(a.LPR) }},
		{"PAYMENTS", func(a AgentLateness) any { return a.Payments }},
	}, l)
}

// QueueStatusDelay is the average days overdue of one queue and status.
type QueueStatusDelay struct {
	Queue          string               `json:"queue"`
	Status         domain.PromiseStatus `json:"status"`
	AvgDaysOverdue float64              `json:"avg_days_overdue"`
	Cases          int                  `json:"cases"`
}

type QueueDelays []QueueStatusDelay

// DelayByQueueStatus groups COMPLETE, PARTIAL and PENDING rows by queue and
// status. A missing days-overdue value counts as 0.
func DelayByQueueStatus(t *Table, f Filter) (QueueDelays, error) {
	type key struct {
		queue  string
		status domain.PromiseStatus
	}
	type acc struct {
		days, n int
	}
	groups := map[key]*acc{}
	err := t.scan(f, []Column{ColumnStatus, ColumnQueue, ColumnDaysOverdue}, func(r domain.Record) {
		if r.Queue == "" || !r.Status.Known() {
			return
		}
		k := key{r.Queue, r.Status}
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
		}
		g.n++
		if r.DaysOverdue != nil {
			g.days += *r.DaysOverdue
		}
	})
	if err != nil {
		return nil, err
	}
	out := make(QueueDelays, 0, len(groups))
	for k, g := range groups {
		out = append(out, QueueStatusDelay{
			Queue:          k.queue,
			Status:         k.status,
			AvgDaysOverdue: mean(float64(g.days), g.n),
			Cases:          g.n,
		})
	}
	slices.SortFunc(out, func(a, b QueueStatusDelay) int {
		if c := cmp.Compare(a.Queue, b.Queue); c != 0 {
			return c
		}
		return cmp.Compare(a.Status, b.Status)
	})
	return out, nil
}

func (q QueueDelays) Summary() Summary {
	return tabulate([]column[QueueStatusDelay]{
		{"QUEUE", func(d QueueStatusDelay) any { return d.Queue }},
		{"STATUS", func(d QueueStatusDelay) any { return string(d.Status) }},
		{"AVG DAYS OVERDUE", func(d QueueStatusDelay) any { return round2(d.AvgDaysOverdue) }},
		{"CASES", func(d QueueStatusDelay) any { return d.Cases }},
	}, q)
}
