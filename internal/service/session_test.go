package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"debtster-kpi/internal/clients"
	"debtster-kpi/internal/ingest"
	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_Create(t *testing.T) {
	ctx := context.Background()
	svc, kv, m := newSessions(t, nil)

	sess, err := svc.Create(ctx, 7, "pagos.xlsx", uploadReader(t))
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, SourceUpload, sess.Source)
	assert.Equal(t, 3, sess.Rows)
	assert.Len(t, sess.FileHash, 64)
	assert.Equal(t, 1, sess.Stats.Invalid[kpi.ColumnPromisedAmount])
	assert.Contains(t, sess.Columns, kpi.ColumnAgent)
	assert.Equal(t, 1, m.invalid[string(kpi.ColumnPromisedAmount)])
	assert.Equal(t, 1, m.loaded["upload/ok"])

	_, err = kv.Get(ctx, tableKey(sess.FileHash))
	require.NoError(t, err)

	got, err := svc.Get(ctx, 7, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.FileHash, got.FileHash)
	assert.Equal(t, "pagos.xlsx", got.FileName)
}

func TestSessionService_OtherUserGetsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSessions(t, nil)

	sess, err := svc.Create(ctx, 1, "a.xlsx", uploadReader(t))
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = svc.Table(ctx, 2, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 2, sess.ID), ErrSessionNotFound)

	_, err = svc.Get(ctx, 1, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_RejectsBadUpload(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newSessions(t, nil)

	_, err := svc.Create(ctx, 1, "notes.txt", bytes.NewReader([]byte("plain text")))
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFile)

	_, err = svc.Create(ctx, 1, "empty.xlsx", bytes.NewReader(workbook(t, []any{"FOO", "BAR"})))
	assert.ErrorIs(t, err, ingest.ErrNoHeader)
	assert.Equal(t, 2, m.loaded["upload/rejected"])
}

func TestSessionService_IdenticalUploadReusesTable(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newSessions(t, nil)
	data := paymentsWorkbook(t)

	first, err := svc.Create(ctx, 1, "a.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	second, err := svc.Create(ctx, 1, "b.xlsx", bytes.NewReader(data))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.FileHash, second.FileHash)
	assert.Equal(t, first.Stats, second.Stats)
	// Invalid cells are only reported for the parse that actually happened.
	assert.Equal(t, 1, m.invalid[string(kpi.ColumnPromisedAmount)])

	_, t1, err := svc.Table(ctx, 1, first.ID)
	require.NoError(t, err)
	_, t2, err := svc.Table(ctx, 1, second.ID)
	require.NoError(t, err)
	assert.Same(t, t1, t2)
	assert.Equal(t, 2, m.hits)
}

func TestSessionService_ReplaceInvalidatesUnreferencedTable(t *testing.T) {
	ctx := context.Background()
	svc, kv, _ := newSessions(t, nil)

	sess, err := svc.Create(ctx, 1, "a.xlsx", uploadReader(t))
	require.NoError(t, err)
	oldHash := sess.FileHash

	other := workbook(t,
		[]any{"AGENT", "QUEUE", "PAID AMOUNT"},
		[]any{"Eva", "Q9", 5},
	)
	replaced, err := svc.Replace(ctx, 1, sess.ID, "b.xlsx", bytes.NewReader(other))
	require.NoError(t, err)

	assert.Equal(t, sess.ID, replaced.ID)
	assert.NotEqual(t, oldHash, replaced.FileHash)
	assert.Equal(t, 1, replaced.Rows)
	assert.Equal(t, "b.xlsx", replaced.FileName)

	_, err = kv.Get(ctx, tableKey(oldHash))
	assert.Error(t, err, "old table should be dropped")
	_, ok := svc.tables.Get(oldHash)
	assert.False(t, ok)

	_, table, err := svc.Table(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Eva"}, table.Agents())
}

func TestSessionService_ReplaceKeepsSharedTable(t *testing.T) {
	ctx := context.Background()
	svc, kv, _ := newSessions(t, nil)
	data := paymentsWorkbook(t)

	a, err := svc.Create(ctx, 1, "a.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	_, err = svc.Create(ctx, 2, "a.xlsx", bytes.NewReader(data))
	require.NoError(t, err)

	other := workbook(t, []any{"AGENT"}, []any{"Eva"})
	_, err = svc.Replace(ctx, 1, a.ID, "b.xlsx", bytes.NewReader(other))
	require.NoError(t, err)

	_, err = kv.Get(ctx, tableKey(a.FileHash))
	assert.NoError(t, err, "table still referenced by the second session")
}

func TestSessionService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, kv, _ := newSessions(t, nil)

	sess, err := svc.Create(ctx, 1, "a.xlsx", uploadReader(t))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, sess.ID))

	_, err = svc.Get(ctx, 1, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = kv.Get(ctx, tableKey(sess.FileHash))
	assert.Error(t, err)
}

func TestSessionService_TableFallsBackToKV(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newSessions(t, nil)

	sess, err := svc.Create(ctx, 1, "a.xlsx", uploadReader(t))
	require.NoError(t, err)
	svc.tables.Purge()

	_, table, err := svc.Table(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 1, m.misses)

	_, _, err = svc.Table(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.hits)
}

func TestSessionService_Filters(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSessions(t, nil)

	sess, err := svc.Create(ctx, 1, "a.xlsx", uploadReader(t))
	require.NoError(t, err)

	opts, err := svc.Filters(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Luis"}, opts.Agents)
	assert.Equal(t, []string{"Tardía", "Temprana"}, opts.Queues)
	require.NotNil(t, opts.MinDate)
	require.NotNil(t, opts.MaxDate)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), *opts.MinDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *opts.MaxDate)
}

func TestSessionService_CreateFromDatabase(t *testing.T) {
	ctx := context.Background()
	src := &fakeRecords{records: dbRecords()}
	svc, _, m := newSessions(t, src)

	filter := repository.RecordsFilter{Queue: "Q1"}
	sess, err := svc.CreateFromDatabase(ctx, 3, filter)
	require.NoError(t, err)

	assert.Equal(t, SourceDatabase, sess.Source)
	assert.Equal(t, 1, sess.Rows)
	assert.Equal(t, "Q1", src.filter.Queue)
	assert.Equal(t, 1, m.loaded["database/ok"])

	again, err := svc.CreateFromDatabase(ctx, 3, filter)
	require.NoError(t, err)
	assert.Equal(t, sess.FileHash, again.FileHash)

	_, table, err := svc.Table(ctx, 3, sess.ID)
	require.NoError(t, err)
	assert.True(t, table.Has(kpi.AllColumns...))
}

func TestSessionService_CreateFromDatabaseGuards(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newSessions(t, &fakeRecords{tooMany: true})
	_, err := svc.CreateFromDatabase(ctx, 1, repository.RecordsFilter{})
	assert.ErrorIs(t, err, ErrTooManyRecords)

	svc, _, _ = newSessions(t, nil)
	_, err = svc.CreateFromDatabase(ctx, 1, repository.RecordsFilter{})
	assert.ErrorIs(t, err, ErrDatabaseUnavailable)
}

func TestSessionService_DeleteAfterSiblingExpired(t *testing.T) {
	ctx := context.Background()
	svc, kv, _ := newSessions(t, nil)
	data := paymentsWorkbook(t)

	expired, err := svc.Create(ctx, 1, "a.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	live, err := svc.Create(ctx, 2, "a.xlsx", bytes.NewReader(data))
	require.NoError(t, err)

	// The first session times out without ever being deleted.
	require.NoError(t, kv.Del(ctx, sessionKey(expired.ID)))

	require.NoError(t, svc.Delete(ctx, 2, live.ID))

	_, err = kv.Get(ctx, tableKey(live.FileHash))
	assert.ErrorIs(t, err, clients.ErrNotFound)
	_, ok := svc.tables.Get(live.FileHash)
	assert.False(t, ok)
	refs, err := kv.SMembers(ctx, tableRefsKey(live.FileHash))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

type expiryKV struct {
	*clients.MemoryKV
	expired map[string]time.Duration
}

func (k *expiryKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	k.expired[key] = ttl
	return k.MemoryKV.Expire(ctx, key, ttl)
}

func TestSessionService_TableRefsShareSessionTTL(t *testing.T) {
	ctx := context.Background()
	kv := &expiryKV{MemoryKV: clients.NewMemoryKV(), expired: map[string]time.Duration{}}
	svc := NewSessionService(kv, nil, newFakeMetrics(), SessionOptions{TTL: time.Hour}, nil)

	sess, err := svc.Create(ctx, 1, "a.xlsx", uploadReader(t))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, kv.expired[tableRefsKey(sess.FileHash)])

	delete(kv.expired, tableRefsKey(sess.FileHash))
	_, _, err = svc.Table(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, kv.expired[tableRefsKey(sess.FileHash)], "reads extend the reference set")
}
