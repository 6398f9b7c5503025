package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"debtster-kpi/internal/clients"
	"debtster-kpi/internal/domain"
	"debtster-kpi/internal/repository"
	"debtster-kpi/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeMetrics struct {
	mu      sync.Mutex
	loaded  map[string]int
	invalid map[string]int
	hits    int
	misses  int
	exports map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		loaded:  map[string]int{},
		invalid: map[string]int{},
		exports: map[string]int{},
	}
}

func (m *fakeMetrics) RecordTableLoaded(source, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded[source+"/"+outcome]++
}

func (m *fakeMetrics) RecordInvalidCells(column string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid[column] += n
}

func (m *fakeMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *fakeMetrics) RecordExport(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[outcome]++
}

type fakeRecords struct {
	records []domain.Record
	tooMany bool
	filter  repository.RecordsFilter
}

func (f *fakeRecords) List(_ context.Context, filter repository.RecordsFilter) ([]domain.Record, error) {
	f.filter = filter
	return f.records, nil
}

func (f *fakeRecords) HasMoreThan(_ context.Context, _ int64, _ repository.RecordsFilter) (bool, error) {
	return f.tooMany, nil
}

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func paymentsWorkbook(t *testing.T) []byte {
	return workbook(t,
		[]any{"AGENTE DE COBRANZA", "FILA DE COBRANZA", "MONTO DE PAGO PROMETIDO", "MONTO DE PAGO", "ESTADO DEL PAGO PROMETIDO", "FECHA"},
		[]any{"Ana", "Temprana", 100, 100, "COMPLETO", "2024-01-10"},
		[]any{"Luis", "Tardía", 200, 50, "PARCIAL", "2024-01-12"},
		[]any{"Ana", "Tardía", "abc", 0, "PENDIENTE", "2024-01-15"},
	)
}

func newSessions(t *testing.T, records RecordSource) (*SessionService, *clients.MemoryKV, *fakeMetrics) {
	t.Helper()
	kv := clients.NewMemoryKV()
	m := newFakeMetrics()
	log := logger.Module("test")
	return NewSessionService(kv, records, m, SessionOptions{TTL: time.Hour}, log), kv, m
}

func dbRecords() []domain.Record {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Record{
		{Agent: "Ana", Queue: "Q1", PromisedAmount: decimal.NewFromInt(10), PaidAmount: decimal.NewFromInt(10), Status: domain.StatusComplete, PaidAt: &day},
	}
}

func uploadReader(t *testing.T) *bytes.Reader {
	return bytes.NewReader(paymentsWorkbook(t))
}
