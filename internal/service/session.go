package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"debtster-kpi/internal/clients"
	"debtster-kpi/internal/domain"
	"debtster-kpi/internal/ingest"
	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/repository"
	"debtster-kpi/pkg/logger"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrTooManyRecords      = errors.New("filter matches too many records")
	ErrDatabaseUnavailable = errors.New("record database is not configured")
)

// KV is the key-value store sessions, cached tables and export statuses live
// in. Get returns clients.ErrNotFound for missing keys.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type RecordSource interface {
	List(ctx context.Context, f repository.RecordsFilter) ([]domain.Record, error)
	HasMoreThan(ctx context.Context, limit int64, f repository.RecordsFilter) (bool, error)
}

type SessionMetrics interface {
	RecordTableLoaded(source, outcome string)
	RecordInvalidCells(column string, n int)
	RecordCacheLookup(hit bool)
}

type Source string

const (
	SourceUpload   Source = "upload"
	SourceDatabase Source = "database"
)

// Session binds one user to one record table, identified by content hash.
type Session struct {
	ID        string       `json:"id"`
	UserID    int64        `json:"user_id"`
	FileName  string       `json:"file_name"`
	FileHash  string       `json:"file_hash"`
	Source    Source       `json:"source"`
	Columns   []kpi.Column `json:"columns"`
	Rows      int          `json:"rows"`
	Stats     ingest.Stats `json:"stats"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type SessionOptions struct {
	TTL        time.Duration
	Location   *time.Location
	CacheSize  int
	MaxRecords int64
}

type SessionService struct {
	kv      KV
	records RecordSource
	metrics SessionMetrics
	tables  *expirable.LRU[string, *kpi.Table]
	opts    SessionOptions
	log     *logrus.Entry
}

func NewSessionService(kv KV, records RecordSource, metrics SessionMetrics, opts SessionOptions, log *logrus.Entry) *SessionService {
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 32
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = 500_000
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &SessionService{
		kv:      kv,
		records: records,
		metrics: metrics,
		tables:  expirable.NewLRU[string, *kpi.Table](opts.CacheSize, nil, opts.TTL),
		opts:    opts,
		log:     moduleLog(log, "session"),
	}
}

func moduleLog(log *logrus.Entry, module string) *logrus.Entry {
	if log == nil {
		return logger.Module(module)
	}
	return log.WithField("module", module)
}

func sessionKey(id string) string     { return "sessions:" + id }
func tableKey(hash string) string     { return "tables:" + hash }
func tableRefsKey(hash string) string { return "tables:" + hash + ":sessions" }

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Create parses an uploaded workbook into a new session. Identical bytes
// reuse the cached table without reparsing.
func (s *SessionService) Create(ctx context.Context, userID int64, fileName string, r io.Reader) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Source:    SourceUpload,
		CreatedAt: time.Now(),
	}
	if err := s.attachUpload(ctx, sess, fileName, r); err != nil {
		return nil, err
	}
	return sess, nil
}

// Replace swaps the file behind a session. The previous table is dropped once
// no session references it.
func (s *SessionService) Replace(ctx context.Context, userID int64, id, fileName string, r io.Reader) (*Session, error) {
	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	oldHash := sess.FileHash
	sess.Source = SourceUpload
	if err := s.attachUpload(ctx, sess, fileName, r); err != nil {
		return nil, err
	}
	if oldHash != sess.FileHash {
		s.release(ctx, oldHash, sess.ID)
	}
	return sess, nil
}

func (s *SessionService) attachUpload(ctx context.Context, sess *Session, fileName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	hash := hashBytes(data)

	table, stats, cached, err := s.uploadTable(ctx, hash, data)
	if err != nil {
		s.metrics.RecordTableLoaded(string(SourceUpload), "rejected")
		return err
	}
	if !cached {
		for col, n := range stats.Invalid {
			s.metrics.RecordInvalidCells(string(col), n)
		}
	}
	s.metrics.RecordTableLoaded(string(SourceUpload), "ok")

	sess.FileName = fileName
	sess.FileHash = hash
	sess.Columns = table.Columns()
	sess.Rows = table.Len()
	sess.Stats = stats
	return s.save(ctx, sess, table)
}

type cachedTable struct {
	Table kpi.Snapshot `json:"table"`
	Stats ingest.Stats `json:"stats"`
}

func (s *SessionService) uploadTable(ctx context.Context, hash string, data []byte) (*kpi.Table, ingest.Stats, bool, error) {
	if entry, ok := s.cached(ctx, hash); ok {
		return kpi.FromSnapshot(entry.Table), entry.Stats, true, nil
	}
	table, stats, err := ingest.ReadXLSX(bytes.NewReader(data), ingest.Options{Location: s.opts.Location})
	if err != nil {
		return nil, stats, false, err
	}
	return table, stats, false, nil
}

// CreateFromDatabase builds a session from the payment history table.
func (s *SessionService) CreateFromDatabase(ctx context.Context, userID int64, f repository.RecordsFilter) (*Session, error) {
	if s.records == nil {
		return nil, ErrDatabaseUnavailable
	}
	tooMany, err := s.records.HasMoreThan(ctx, s.opts.MaxRecords, f)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	if tooMany {
		return nil, fmt.Errorf("%w: more than %d", ErrTooManyRecords, s.opts.MaxRecords)
	}
	recs, err := s.records.List(ctx, f)
	if err != nil {
		s.metrics.RecordTableLoaded(string(SourceDatabase), "failed")
		return nil, fmt.Errorf("list records: %w", err)
	}

	table := kpi.NewTable(kpi.AllColumns, recs)
	encoded, err := json.Marshal(table.Snapshot())
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTableLoaded(string(SourceDatabase), "ok")

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  "collection_payments",
		FileHash:  hashBytes(encoded),
		Source:    SourceDatabase,
		Columns:   table.Columns(),
		Rows:      table.Len(),
		Stats:     ingest.Stats{Rows: table.Len()},
		CreatedAt: now,
	}
	if err := s.save(ctx, sess, table); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) save(ctx context.Context, sess *Session, table *kpi.Table) error {
	sess.UpdatedAt = time.Now()

	entry, err := json.Marshal(cachedTable{Table: table.Snapshot(), Stats: sess.Stats})
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	if err := s.kv.Set(ctx, tableKey(sess.FileHash), entry, s.opts.TTL); err != nil {
		return fmt.Errorf("store table: %w", err)
	}
	if err := s.kv.SAdd(ctx, tableRefsKey(sess.FileHash), sess.ID); err != nil {
		return fmt.Errorf("store table refs: %w", err)
	}
	if err := s.kv.Expire(ctx, tableRefsKey(sess.FileHash), s.opts.TTL); err != nil {
		return fmt.Errorf("expire table refs: %w", err)
	}
	s.tables.Add(sess.FileHash, table)

	meta, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.ID), meta, s.opts.TTL); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get returns the caller's session. Sessions of other users are reported as
// not found.
func (s *SessionService) Get(ctx context.Context, userID int64, id string) (*Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(id))
	if errors.Is(err, clients.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

// Table returns the session and its record table, extending both TTLs.
func (s *SessionService) Table(ctx context.Context, userID int64, id string) (*Session, *kpi.Table, error) {
	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	if t, ok := s.tables.Get(sess.FileHash); ok {
		s.metrics.RecordCacheLookup(true)
		s.touch(ctx, sess)
		return sess, t, nil
	}
	s.metrics.RecordCacheLookup(false)

	entry, ok := s.cached(ctx, sess.FileHash)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	t := kpi.FromSnapshot(entry.Table)
	s.tables.Add(sess.FileHash, t)
	s.touch(ctx, sess)
	return sess, t, nil
}

func (s *SessionService) cached(ctx context.Context, hash string) (cachedTable, bool) {
	var entry cachedTable
	raw, err := s.kv.Get(ctx, tableKey(hash))
	if err != nil {
		if !errors.Is(err, clients.ErrNotFound) {
			logger.LogError(s.log.Logger, "session", "cached", "load table", hash, err)
		}
		return entry, false
	}
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.LogError(s.log.Logger, "session", "cached", "decode table", hash, err)
		return entry, false
	}
	return entry, true
}

func (s *SessionService) touch(ctx context.Context, sess *Session) {
	for _, k := range []string{sessionKey(sess.ID), tableKey(sess.FileHash), tableRefsKey(sess.FileHash)} {
		if err := s.kv.Expire(ctx, k, s.opts.TTL); err != nil {
			s.log.WithError(err).WithField("key", k).Warn("failed to extend ttl")
		}
	}
}

func (s *SessionService) Delete(ctx context.Context, userID int64, id string) error {
	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.kv.Del(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.release(ctx, sess.FileHash, id)
	return nil
}

// release drops a session's reference to a table, evicting the table when no
// live session refers to it. Members whose session has expired are pruned.
func (s *SessionService) release(ctx context.Context, hash, sessionID string) {
	if hash == "" {
		return
	}
	log := s.log.WithFields(logrus.Fields{"hash": hash, "session_id": sessionID})
	if err := s.kv.SRem(ctx, tableRefsKey(hash), sessionID); err != nil {
		log.WithError(err).Warn("failed to release table reference")
		return
	}
	refs, err := s.kv.SMembers(ctx, tableRefsKey(hash))
	if err != nil {
		log.WithError(err).Warn("failed to list table references")
		return
	}
	for _, id := range refs {
		_, err := s.kv.Get(ctx, sessionKey(id))
		if err == nil {
			return
		}
		if !errors.Is(err, clients.ErrNotFound) {
			log.WithError(err).Warn("failed to check table reference")
			return
		}
		if err := s.kv.SRem(ctx, tableRefsKey(hash), id); err != nil {
			log.WithError(err).Warn("failed to prune table reference")
		}
	}
	s.tables.Remove(hash)
	if err := s.kv.Del(ctx, tableKey(hash), tableRefsKey(hash)); err != nil {
		log.WithError(err).Warn("failed to drop cached table")
		return
	}
	log.Debug("cached table invalidated")
}

// FilterOptions lists the selector values available in a session.
type FilterOptions struct {
	Agents  []string   `json:"agents"`
	Queues  []string   `json:"queues"`
	MinDate *time.Time `json:"min_date"`
	MaxDate *time.Time `json:"max_date"`
}

func (s *SessionService) Filters(ctx context.Context, userID int64, id string) (*FilterOptions, error) {
	_, t, err := s.Table(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	from, to := t.DateRange()
	return &FilterOptions{
		Agents:  t.Agents(),
		Queues:  t.Queues(),
		MinDate: from,
		MaxDate: to,
	}, nil
}
