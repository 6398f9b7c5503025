package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row of an uploaded payment history.
type Record struct {
	CaseID string `json:"case_id,omitempty"`

	Agent string `json:"agent,omitempty"`
	Queue string `json:"queue,omitempty"`

	PromisedAmount decimal.Decimal `json:"promised_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`

	Status PromiseStatus `json:"status,omitempty"`

	PaidAt     *time.Time `json:"paid_at,omitempty"`
	PromisedAt *time.Time `json:"promised_at,omitempty"`

	DaysOverdue *int `json:"days_overdue,omitempty"`
}

// PaymentDay returns the calendar day of the recorded payment.
func (r Record) PaymentDay() (time.Time, bool) {
	if r.PaidAt == nil {
		return time.Time{}, false
	}
	return Day(*r.PaidAt), true
}

// DaysLate is the whole number of days between promise and payment,
// rounded down. Negative values mean the debtor paid early.
func (r Record) DaysLate() (int, bool) {
	if r.PaidAt == nil || r.PromisedAt == nil {
		return 0, false
	}
	d := r.PaidAt.Sub(*r.PromisedAt)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days, true
}

// Day truncates t to midnight of its own calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
