// Package report assembles aggregator results into dashboard sections and
// renders them as spreadsheet reports.
package report

import (
	"errors"
	"fmt"
	"slices"

	"debtster-kpi/internal/kpi"
)

var ErrUnknownKPI = errors.New("unknown kpi")

type ChartKind string

const (
	ChartTable      ChartKind = "table"
	ChartBar        ChartKind = "bar"
	ChartStackedBar ChartKind = "stacked_bar"
	ChartLine       ChartKind = "line"
)

// Chart tells the client how to plot a section. X and Y name summary columns;
// Series, when set, names the column that splits Y into groups.
type Chart struct {
	Kind   ChartKind `json:"kind"`
	X      string    `json:"x,omitempty"`
	Y      []string  `json:"y,omitempty"`
	Series string    `json:"series,omitempty"`
}

// Definition binds a dashboard key to its aggregator.
type Definition struct {
	Key   string                                            `json:"key"`
	Title string                                            `json:"title"`
	Chart Chart                                             `json:"chart"`
	Run   func(*kpi.Table, kpi.Filter) (kpi.Summary, error) `json:"-"`
}

var catalog = []Definition{
	{
		Key:   "overview",
		Title: "Resumen general",
		Chart: Chart{Kind: ChartTable},
		Run:   kpi.Summarize(kpi.Totals),
	},
	{
		Key:   "agent_effectiveness",
		Title: "Efectividad de Cobranza por Agente",
		Chart: Chart{Kind: ChartBar, X: "AGENT", Y: []string{"EFFECTIVE ACCOUNTS"}},
		Run:   kpi.Summarize(kpi.AgentEffectiveness),
	},
	{
		Key:   "promised_vs_paid",
		Title: "Monto Prometido vs Pagado por Estado del Pago",
		Chart: Chart{Kind: ChartStackedBar, X: "AGENT", Y: []string{"COMPLETE AMOUNT", "PARTIAL AMOUNT", "PENDING AMOUNT"}},
		Run:   kpi.Summarize(kpi.PromisedVsPaid),
	},
	{
		Key:   "daily_total",
		Title: "Monto Total Recuperado por Día",
		Chart: Chart{Kind: ChartLine, X: "DATE", Y: []string{"TOTAL PAID"}},
		Run:   kpi.Summarize(kpi.DailyTotal),
	},
	{
		Key:   "high_risk_accounts",
		Title: "Cuentas de Alto Riesgo por Agente",
		Chart: Chart{Kind: ChartBar, X: "AGENT", Y: []string{"HIGH-RISK ACCOUNTS"}},
		Run:   kpi.Summarize(kpi.HighRiskAccounts),
	},
	{
		Key:   "status_distribution",
		Title: "Distribución del Estado del Pago Prometido",
		Chart: Chart{Kind: ChartBar, X: "STATUS", Y: []string{"SHARE"}},
		Run:   kpi.Summarize(kpi.StatusDistribution),
	},
	{
		Key:   "dso_recovery_settlement",
		Title: "DSO, Recovery Rate y Settlement Rate por Agente",
		Chart: Chart{Kind: ChartBar, X: "AGENT", Y: []string{"DSO", "RECOVERY RATE (%)", "SETTLEMENT RATE (%)"}},
		Run:   kpi.Summarize(kpi.DSORecoverySettlement),
	},
	{
		Key:   "lpr_acp",
		Title: "Late Payment Rate (LPR) y Average Collection Period (ACP)",
		Chart: Chart{Kind: ChartBar, X: "AGENT", Y: []string{"LPR (%)", "ACP"}},
		Run:   kpi.Summarize(kpi.LatePaymentRates),
	},
	{
		Key:   "nsr_rr",
		Title: "Negotiation Success Rate (NSR) y Rejection Rate (RR)",
		Chart: Chart{Kind: ChartBar, X: "AGENT", Y: []string{"NSR (%)", "RR (%)"}},
		Run:   kpi.Summarize(kpi.NegotiationRates),
	},
	{
		Key:   "delay_by_queue_status",
		Title: "Promedio de Días de Atraso por Fila de Cobranza y Estado del Pago",
		Chart: Chart{Kind: ChartStackedBar, X: "QUEUE", Y: []string{"AVG DAYS OVERDUE"}, Series: "STATUS"},
		Run:   kpi.Summarize(kpi.DelayByQueueStatus),
	},
	{
		Key:   "productivity_by_agent",
		Title: "Productividad por Agente de Cobranza",
		Chart: Chart{Kind: ChartBar, X: "AGENT", Y: []string{"ACCOUNTS PAID"}},
		Run:   kpi.Summarize(kpi.ProductivityByAgent),
	},
	{
		Key:   "productivity_by_queue",
		Title: "Productividad por Fila de Cobranza",
		Chart: Chart{Kind: ChartBar, X: "QUEUE", Y: []string{"ACCOUNTS PAID"}},
		Run:   kpi.Summarize(kpi.ProductivityByQueue),
	},
}

// Catalog returns every dashboard definition in display order.
func Catalog() []Definition {
	return slices.Clone(catalog)
}

func Lookup(key string) (Definition, error) {
	for _, d := range catalog {
		if d.Key == key {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKPI, key)
}

// Select resolves keys to definitions in catalog order, dropping duplicates.
// No keys selects the whole catalog.
func Select(keys ...string) ([]Definition, error) {
	if len(keys) == 0 {
		return Catalog(), nil
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, err := Lookup(k); err != nil {
			return nil, err
		}
		want[k] = true
	}
	out := make([]Definition, 0, len(want))
	for _, d := range catalog {
		if want[d.Key] {
			out = append(out, d)
		}
	}
	return out, nil
}
