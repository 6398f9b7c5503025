package ingest

import (
	"strings"
	"unicode"

	"debtster-kpi/internal/kpi"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// headerAliases maps normalized header text onto table columns. Keys are
// compared after normalizeHeader.
var headerAliases = map[string]kpi.Column{
	"CFRNID":  kpi.ColumnCaseID,
	"CASE ID": kpi.ColumnCaseID,
	"CASO":    kpi.ColumnCaseID,

	"AGENTE DE COBRANZA": kpi.ColumnAgent,
	"AGENTE":             kpi.ColumnAgent,
	"AGENT":              kpi.ColumnAgent,
	"COLLECTION AGENT":   kpi.ColumnAgent,

	"FILA DE COBRANZA": kpi.ColumnQueue,
	"FILA":             kpi.ColumnQueue,
	"QUEUE":            kpi.ColumnQueue,
	"COLLECTION QUEUE": kpi.ColumnQueue,

	"MONTO DE PAGO PROMETIDO": kpi.ColumnPromisedAmount,
	"MONTO PROMETIDO":         kpi.ColumnPromisedAmount,
	"PROMISED AMOUNT":         kpi.ColumnPromisedAmount,

	"MONTO DE PAGO":  kpi.ColumnPaidAmount,
	"MONTO PAGADO":   kpi.ColumnPaidAmount,
	"PAID AMOUNT":    kpi.ColumnPaidAmount,
	"PAYMENT AMOUNT": kpi.ColumnPaidAmount,

	"ESTADO DEL PAGO PROMETIDO": kpi.ColumnStatus,
	"ESTADO":                    kpi.ColumnStatus,
	"PROMISE STATUS":            kpi.ColumnStatus,
	"STATUS":                    kpi.ColumnStatus,

	"FECHA":         kpi.ColumnPaymentDate,
	"FECHA DE PAGO": kpi.ColumnPaymentDate,
	"DATE":          kpi.ColumnPaymentDate,
	"PAYMENT DATE":  kpi.ColumnPaymentDate,

	"HORA DE PAGO PROMETIDO":  kpi.ColumnPromisedDate,
	"FECHA DE PAGO PROMETIDO": kpi.ColumnPromisedDate,
	"PROMISED PAYMENT DATE":   kpi.ColumnPromisedDate,
	"PROMISED DATE":           kpi.ColumnPromisedDate,

	"DIAS DE ATRASO EN EL MOMENTO DEL PAGO PROMETIDO": kpi.ColumnDaysOverdue,
	"DIAS DE ATRASO": kpi.ColumnDaysOverdue,
	"DAYS OVERDUE":   kpi.ColumnDaysOverdue,
}

// normalizeHeader upper-cases s, drops diacritics and collapses any run of
// punctuation or whitespace into a single space.
func normalizeHeader(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(fold, s); err == nil {
		s = out
	}
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToUpper(strings.Join(words, " "))
}

// LookupColumn resolves a spreadsheet header to its column.
func LookupColumn(header string) (kpi.Column, bool) {
	c, ok := headerAliases[normalizeHeader(header)]
	return c, ok
}
