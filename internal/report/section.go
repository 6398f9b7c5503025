package report

import (
	"errors"

	"debtster-kpi/internal/kpi"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusEmpty       Status = "empty"
	StatusUnavailable Status = "unavailable"
)

const emptyMessage = "No hay datos para los filtros seleccionados."

// Section is one computed dashboard block. An unavailable section carries no
// summary and explains which spreadsheet columns are missing.
type Section struct {
	Key            string       `json:"key"`
	Title          string       `json:"title"`
	Status         Status       `json:"status"`
	Summary        *kpi.Summary `json:"summary,omitempty"`
	Chart          Chart        `json:"chart"`
	MissingColumns []string     `json:"missing_columns,omitempty"`
	Message        string       `json:"message,omitempty"`
}

// Evaluate runs one definition against the table.
func Evaluate(def Definition, t *kpi.Table, f kpi.Filter) Section {
	s := Section{Key: def.Key, Title: def.Title, Chart: def.Chart}

	summary, err := def.Run(t, f)
	if err != nil {
		s.Status = StatusUnavailable
		var missing *kpi.MissingColumnsError
		if errors.As(err, &missing) {
			for _, c := range missing.Columns {
				s.MissingColumns = append(s.MissingColumns, c.Header())
			}
			s.Message = missing.Message()
		} else {
			s.Message = err.Error()
		}
		return s
	}

	s.Summary = &summary
	if summary.Empty() {
		s.Status = StatusEmpty
		s.Message = emptyMessage
		return s
	}
	s.Status = StatusOK
	return s
}
