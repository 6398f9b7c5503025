package kpi

import "strings"

// MissingColumnsError is returned when the table lacks a column an aggregator
// or an active filter depends on. No partial result accompanies it.
type MissingColumnsError struct {
	Columns []Column
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = string(c)
	}
	return "missing required columns: " + strings.Join(names, ", ")
}

// Message is the user-facing text, naming columns by their spreadsheet header.
func (e *MissingColumnsError) Message() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Header()
	}
	return "Faltan columnas requeridas: " + strings.Join(names, ", ")
}
