package kpi

import (
	"slices"

	"debtster-kpi/internal/domain"
)

// StatusShare is the relative frequency of one promise status.
type StatusShare struct {
	Status domain.PromiseStatus `json:"status"`
	Count  int                  `json:"count"`
	Share  float64              `json:"share"`
}

type StatusMix []StatusShare

// StatusDistribution reports how often each non-blank status occurs. Shares
// are fractions of the counted rows and sum to 1.
func StatusDistribution(t *Table, f Filter) (StatusMix, error) {
	counts := map[domain.PromiseStatus]int{}
	total := 0
	err := t.scan(f, []Column{ColumnStatus}, func(r domain.Record) {
		if r.Status == "" {
			return
		}
		counts[r.Status]++
		total++
	})
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(counts)
	slices.SortStableFunc(keys, func(a, b domain.PromiseStatus) int { return counts[b] - counts[a] })
	out := make(StatusMix, 0, len(keys))
	for _, k := range keys {
		out = append(out, StatusShare{Status: k, Count: counts[k], Share: float64(counts[k]) / float64(total)})
	}
	return out, nil
}

func (m StatusMix) Summary() Summary {
	return tabulate([]column[StatusShare]{
		{"STATUS", func(s StatusShare) any { return string(s.Status) }},
		{"CASES", func(s StatusShare) any { return s.Count }},
		{"SHARE", func(s StatusShare) any { return s.Share }},
	}, m)
}

// AgentNegotiation holds negotiation outcomes of one agent.
type AgentNegotiation struct {
	Agent     string  `json:"agent"`
	Total     int     `json:"total"`
	Fulfilled int     `json:"fulfilled"`
	Rejected  int     `json:"rejected"`
	NSR       float64 `json:"nsr"`
	RR        float64 `json:"rr"`
}

type Negotiation []AgentNegotiation

// NegotiationRates computes the negotiation success rate (fulfilled promises)
// and rejection rate (pending promises) per agent over COMPLETE, PARTIAL and
// PENDING rows. NSR+RR is 100 for every agent.
func NegotiationRates(t *Table, f Filter) (Negotiation, error) {
	groups := map[string]*AgentNegotiation{}
	err := t.scan(f, []Column{ColumnStatus, ColumnAgent}, func(r domain.Record) {
		if r.Agent == "" || !r.Status.Known() {
			return
		}
		g, ok := groups[r.Agent]
		if !ok {
			g = &AgentNegotiation{Agent: r.Agent}
			groups[r.Agent] = g
		}
		g.Total++
		if r.Status.Paid() {
			g.Fulfilled++
		} else {
			g.Rejected++
		}
	})
	if err != nil {
		return nil, err
	}
	out := make(Negotiation, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		g.NSR = share(g.Fulfilled, g.Total)
		g.RR = share(g.Rejected, g.Total)
		out = append(out, *g)
	}
	return out, nil
}

func (n Negotiation) Summary() Summary {
	return tabulate([]column[AgentNegotiation]{
		{"AGENT", func(a AgentNegotiation) any { return a.Agent }},
		{"TOTAL PROMISES", func(a AgentNegotiation) any { return a.Total }},
		{"FULFILLED", func(a AgentNegotiation) any { return a.Fulfilled }},
		{"REJECTED", func(a AgentNegotiation) any { return a.Rejected }},
		{"NSR (%)", func(a AgentNegotiation) any { return round2(a.NSR) }},
		{"RR (%)", func(a AgentNegotiation) any { return round2(a.RR) }},
	}, n)
}
