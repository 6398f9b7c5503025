package domain

import "strings"

type PromiseStatus string

const (
	StatusComplete PromiseStatus = "COMPLETE"
	StatusPartial  PromiseStatus = "PARTIAL"
	StatusPending  PromiseStatus = "PENDING"
)

var statusAliases = map[string]PromiseStatus{
	"COMPLETE":  StatusComplete,
	"COMPLETED": StatusComplete,
	"COMPLETO":  StatusComplete,
	"COMPLETA":  StatusComplete,
	"PARTIAL":   StatusPartial,
	"PARCIAL":   StatusPartial,
	"PENDING":   StatusPending,
	"PENDIENTE": StatusPending,
	"SIN PAGO":  StatusPending,
	"NO PAGADO": StatusPending,
}

// ParsePromiseStatus normalizes a raw status cell. Known spellings map onto
// the three canonical values; anything else is kept upper-cased so that the
// status distribution still reports it. Blank input yields "".
func ParsePromiseStatus(raw string) PromiseStatus {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if s == "" {
		return ""
	}
	if st, ok := statusAliases[s]; ok {
		return st
	}
	return PromiseStatus(s)
}

// Paid reports whether the promise produced a payment.
func (s PromiseStatus) Paid() bool {
	return s == StatusComplete || s == StatusPartial
}

func (s PromiseStatus) Known() bool {
	return s.Paid() || s == StatusPending
}
