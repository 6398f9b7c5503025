package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/report"
	"debtster-kpi/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	exportSetKey = "export_ids"
	exportTTL    = 20 * time.Minute
	exportType   = "kpi_report"
)

const (
	StageBuilding  = "building"
	StageWriting   = "writing"
	StageUploading = "uploading"
	StageReady     = "ready"
	StageFailed    = "failed"
)

// ExportStatus is the progress record of one report export kept in KV.
type ExportStatus struct {
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	UserID    int64     `json:"user_id"`
	SessionID string    `json:"session_id"`
	Filters   any       `json:"filters"`
	Progress  float64   `json:"progress"`
	Stage     string    `json:"stage"`
	FileURL   *string   `json:"file_url"`
	Error     string    `json:"error,omitempty"`
	Created   time.Time `json:"created_at"`
}

// ReportStorage persists a finished workbook and returns a download URL.
type ReportStorage interface {
	Store(ctx context.Context, fileName string, data []byte) (string, error)
}

type ReportNotifier interface {
	NotifyReportProgress(ctx context.Context, userID int64, exportID string, progress float64, stage string) error
	NotifyReportComplete(ctx context.Context, userID int64, exportID, url, filename string) error
	NotifyReportFailed(ctx context.Context, userID int64, exportID, errMsg string) error
}

type ExportMetrics interface {
	RecordExport(outcome string)
}

type ReportExportService struct {
	sessions TableProvider
	builder  SectionBuilder
	kv       KV
	storage  ReportStorage
	notifier ReportNotifier
	metrics  ExportMetrics
	log      *logrus.Entry

	wg  sync.WaitGroup
	now func() time.Time
}

func NewReportExportService(
	sessions TableProvider,
	builder SectionBuilder,
	kv KV,
	storage ReportStorage,
	notifier ReportNotifier,
	metrics ExportMetrics,
	log *logrus.Entry,
) *ReportExportService {
	return &ReportExportService{
		sessions: sessions,
		builder:  builder,
		kv:       kv,
		storage:  storage,
		notifier: notifier,
		metrics:  metrics,
		log:      moduleLog(log, "report_export"),
		now:      time.Now,
	}
}

func (s *ReportExportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, st.Key, data, exportTTL); err != nil {
		return err
	}
	return s.kv.SAdd(ctx, exportSetKey, st.Key)
}

// Start validates the session and KPI keys, records a pending export and
// builds the workbook in the background. It returns the export key.
func (s *ReportExportService) Start(ctx context.Context, userID int64, sessionID string, f kpi.Filter, keys []string) (string, error) {
	if _, err := report.Select(keys...); err != nil {
		return "", err
	}
	if _, _, err := s.sessions.Table(ctx, userID, sessionID); err != nil {
		return "", err
	}

	status := &ExportStatus{
		Key:       fmt.Sprintf("exports:%s", uuid.NewString()),
		Type:      exportType,
		UserID:    userID,
		SessionID: sessionID,
		Filters:   exportFilters(f, keys),
		Stage:     StageBuilding,
		Created:   s.now(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		return "", fmt.Errorf("save export status: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.WithoutCancel(ctx), status, f, keys)
	}()
	return status.Key, nil
}

// Wait blocks until every running export has finished.
func (s *ReportExportService) Wait() {
	s.wg.Wait()
}

func (s *ReportExportService) run(ctx context.Context, status *ExportStatus, f kpi.Filter, keys []string) {
	log := s.log.WithFields(logrus.Fields{"export_id": status.Key, "user_id": status.UserID})

	progress := func(p float64, stage string) {
		status.Progress = p
		status.Stage = stage
		if err := s.saveStatus(ctx, status); err != nil {
			log.WithError(err).Warn("failed to save export status")
		}
		_ = s.notifier.NotifyReportProgress(ctx, status.UserID, status.Key, p, stage)
	}
	fail := func(step string, err error) {
		logger.LogError(log.Logger, "report_export", "run", step, status.Key, err)
		status.Stage = StageFailed
		status.Error = err.Error()
		if err := s.saveStatus(ctx, status); err != nil {
			log.WithError(err).Warn("failed to save export status")
		}
		_ = s.notifier.NotifyReportFailed(ctx, status.UserID, status.Key, err.Error())
		s.metrics.RecordExport("failed")
	}

	_, t, err := s.sessions.Table(ctx, status.UserID, status.SessionID)
	if err != nil {
		fail("load table", err)
		return
	}
	sections, err := s.builder.Build(ctx, t, f, keys...)
	if err != nil {
		fail("build sections", err)
		return
	}
	progress(50, StageWriting)

	data, err := report.WriteXLSX(sections)
	if err != nil {
		fail("write workbook", err)
		return
	}
	progress(90, StageUploading)

	fileName := fmt.Sprintf("kpi_report_%s.xlsx", s.now().Format("20060102_150405"))
	url, err := s.storage.Store(ctx, fileName, data)
	if err != nil {
		fail("store workbook", err)
		return
	}

	// 100 is reserved for when the URL is ready.
	status.FileURL = &url
	progress(100, StageReady)
	_ = s.notifier.NotifyReportComplete(ctx, status.UserID, status.Key, url, fileName)
	s.metrics.RecordExport("ok")
	log.WithField("file", fileName).Info("report export complete")
}

func exportFilters(f kpi.Filter, keys []string) map[string]any {
	m := map[string]any{
		"start_date": nil,
		"end_date":   nil,
		"queue":      nil,
		"agent":      nil,
		"kpi":        nil,
	}
	if f.From != nil {
		m["start_date"] = f.From.Format(time.DateOnly)
	}
	if f.To != nil {
		m["end_date"] = f.To.Format(time.DateOnly)
	}
	if f.Queue != "" {
		m["queue"] = f.Queue
	}
	if f.Agent != "" {
		m["agent"] = f.Agent
	}
	if len(keys) > 0 {
		m["kpi"] = strings.Join(keys, ",")
	}
	return m
}
