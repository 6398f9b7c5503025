package kpi

import "debtster-kpi/internal/domain"

// AgentCount is a number of cases attributed to one agent.
type AgentCount struct {
	Agent string `json:"agent"`
	Count int    `json:"count"`
}

// QueueCount is a number of cases attributed to one collection queue.
type QueueCount struct {
	Queue string `json:"queue"`
	Count int    `json:"count"`
}

type (
	Effectiveness     []AgentCount
	HighRisk          []AgentCount
	Productivity      []AgentCount
	QueueProductivity []QueueCount
)

// HighRiskOverdueDays is the days-overdue threshold of a high-risk account.
const HighRiskOverdueDays = 90

func countBy(t *Table, f Filter, required []Column, keep func(domain.Record) bool, key func(domain.Record) string) (map[string]int, error) {
	counts := map[string]int{}
	err := t.scan(f, required, func(r domain.Record) {
		k := key(r)
		if k == "" || !keep(r) {
			return
		}
		counts[k]++
	})
	return counts, err
}

func byAgent(r domain.Record) string { return r.Agent }
func byQueue(r domain.Record) string { return r.Queue }

func paid(r domain.Record) bool { return r.Status.Paid() }

func agentCounts(m map[string]int, order []string) []AgentCount {
	out := make([]AgentCount, 0, len(order))
	for _, k := range order {
		out = append(out, AgentCount{Agent: k, Count: m[k]})
	}
	return out
}

// AgentEffectiveness counts COMPLETE and PARTIAL cases per agent, most
// effective agent first.
func AgentEffectiveness(t *Table, f Filter) (Effectiveness, error) {
	m, err := countBy(t, f, []Column{ColumnStatus, ColumnAgent}, paid, byAgent)
	if err != nil {
		return nil, err
	}
	return agentCounts(m, ranked(m)), nil
}

func (e Effectiveness) Summary() Summary {
	return tabulate([]column[AgentCount]{
		{"AGENT", func(c AgentCount) any { return c.Agent }},
		{"EFFECTIVE ACCOUNTS", func(c AgentCount) any { return c.Count }},
	}, e)
}

// HighRiskAccounts counts PENDING cases at least HighRiskOverdueDays overdue,
// per agent in name order. Rows without a days-overdue value never count.
func HighRiskAccounts(t *Table, f Filter) (HighRisk, error) {
	keep := func(r domain.Record) bool {
		return r.Status == domain.StatusPending && r.DaysOverdue != nil && *r.DaysOverdue >= HighRiskOverdueDays
	}
	m, err := countBy(t, f, []Column{ColumnStatus, ColumnAgent, ColumnDaysOverdue}, keep, byAgent)
	if err != nil {
		return nil, err
	}
	return agentCounts(m, sortedKeys(m)), nil
}

func (h HighRisk) Summary() Summary {
	return tabulate([]column[AgentCount]{
		{"AGENT", func(c AgentCount) any { return c.Agent }},
		{"HIGH-RISK ACCOUNTS", func(c AgentCount) any { return c.Count }},
	}, h)
}

// ProductivityByAgent counts paid accounts per agent, highest first. The
// filter's date range and queue are the selectors of the productivity view.
func ProductivityByAgent(t *Table, f Filter) (Productivity, error) {
	m, err := countBy(t, f, []Column{ColumnStatus, ColumnAgent}, paid, byAgent)
	if err != nil {
		return nil, err
	}
	return agentCounts(m, ranked(m)), nil
}

func (p Productivity) Summary() Summary {
	return tabulate([]column[AgentCount]{
		{"AGENT", func(c AgentCount) any { return c.Agent }},
		{"ACCOUNTS PAID", func(c AgentCount) any { return c.Count }},
	}, p)
}

// ProductivityByQueue counts paid accounts per collection queue, highest first.
func ProductivityByQueue(t *Table, f Filter) (QueueProductivity, error) {
	m, err := countBy(t, f, []Column{ColumnStatus, ColumnQueue}, paid, byQueue)
	if err != nil {
		return nil, err
	}
	out := make(QueueProductivity, 0, len(m))
	for _, k := range ranked(m) {
		out = append(out, QueueCount{Queue: k, Count: m[k]})
	}
	return out, nil
}

func (q QueueProductivity) Summary() Summary {
	return tabulate([]column[QueueCount]{
		{"QUEUE", func(c QueueCount) any { return c.Queue }},
		{"ACCOUNTS PAID", func(c QueueCount) any { return c.Count }},
	}, q)
}
