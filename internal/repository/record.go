package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"debtster-kpi/internal/domain"

	"github.com/shopspring/decimal"
)

// RecordsFilter narrows the payment history loaded from Postgres. Dates are
// inclusive calendar days over payment_date.
type RecordsFilter struct {
	From  *time.Time
	To    *time.Time
	Queue string
	Agent string
}

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func buildRecordsWhere(f RecordsFilter, args []any) (string, []any) {
	where := []string{"1=1"}
	i := len(args) + 1

	if f.From != nil {
		where = append(where, fmt.Sprintf("payment_date >= $%d", i))
		args = append(args, domain.Day(*f.From))
		i++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("payment_date < $%d", i))
		args = append(args, domain.Day(*f.To).AddDate(0, 0, 1))
		i++
	}
	if f.Queue != "" {
		where = append(where, fmt.Sprintf("queue = $%d", i))
		args = append(args, f.Queue)
		i++
	}
	if f.Agent != "" {
		where = append(where, fmt.Sprintf("agent = $%d", i))
		args = append(args, f.Agent)
	}

	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *RecordRepository) List(ctx context.Context, f RecordsFilter) ([]domain.Record, error) {
	base := `SELECT case_id, agent, queue, promised_amount, paid_amount, promise_status, payment_date, promised_date, days_overdue FROM collection_payments`
	where, args := buildRecordsWhere(f, nil)
	query := base + where + " ORDER BY payment_date NULLS LAST, case_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			rec                    domain.Record
			caseID, agent, queue   sql.NullString
			status                 sql.NullString
			promised, paid         decimal.NullDecimal
			paymentDate, promiseAt sql.NullTime
			daysOverdue            sql.NullInt64
		)
		if err := rows.Scan(
			&caseID,
			&agent,
			&queue,
			&promised,
			&paid,
			&status,
			&paymentDate,
			&promiseAt,
			&daysOverdue,
		); err != nil {
			return nil, err
		}

		rec.CaseID = caseID.String
		rec.Agent = strings.TrimSpace(agent.String)
		rec.Queue = strings.TrimSpace(queue.String)
		rec.Status = domain.ParsePromiseStatus(status.String)
		if promised.Valid {
			rec.PromisedAmount = promised.Decimal
		}
		if paid.Valid {
			rec.PaidAmount = paid.Decimal
		}
		if paymentDate.Valid {
			t := paymentDate.Time
			rec.PaidAt = &t
		}
		if promiseAt.Valid {
			t := promiseAt.Time
			rec.PromisedAt = &t
		}
		if daysOverdue.Valid {
			n := int(daysOverdue.Int64)
			rec.DaysOverdue = &n
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// HasMoreThan reports whether the filter matches more than limit rows.
func (r *RecordRepository) HasMoreThan(ctx context.Context, limit int64, f RecordsFilter) (bool, error) {
	where, args := buildRecordsWhere(f, []any{limit})
	query := `SELECT COUNT(*) > $1 FROM collection_payments` + where

	var tooMany bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&tooMany); err != nil {
		return false, err
	}
	return tooMany, nil
}
