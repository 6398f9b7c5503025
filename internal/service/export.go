package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"debtster-kpi/internal/clients"
)

var ErrExportNotFound = errors.New("export not found")

// ExportView is an export status as shown to its owner.
type ExportView struct {
	Key       string  `json:"key"`
	Type      string  `json:"type"`
	UserID    int64   `json:"user_id"`
	SessionID string  `json:"session_id"`
	Progress  float64 `json:"progress"`
	Stage     string  `json:"stage"`
	FileURL   *string `json:"file_url"`
	Error     string  `json:"error,omitempty"`
	Filters   any     `json:"filters"`
	CreatedAt string  `json:"created_at"`
}

type ExportService struct {
	kv  KV
	now func() time.Time
}

func NewExportService(kv KV) *ExportService {
	return &ExportService{
		kv:  kv,
		now: time.Now,
	}
}

func (s *ExportService) view(st ExportStatus) ExportView {
	return ExportView{
		Key:       st.Key,
		Type:      st.Type,
		UserID:    st.UserID,
		SessionID: st.SessionID,
		Progress:  st.Progress,
		Stage:     st.Stage,
		FileURL:   st.FileURL,
		Error:     st.Error,
		Filters:   st.Filters,
		CreatedAt: humanizeEsAgo(st.Created, s.now()),
	}
}

// GetExports lists the user's exports, newest first. Expired keys are pruned
// from the index set.
func (s *ExportService) GetExports(ctx context.Context, userID int64) ([]ExportView, error) {
	keys, err := s.kv.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	var statuses []ExportStatus
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if errors.Is(err, clients.ErrNotFound) {
			_ = s.kv.SRem(ctx, exportSetKey, key)
			continue
		}
		if err != nil {
			continue
		}

		var status ExportStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}
		if status.UserID == userID {
			statuses = append(statuses, status)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	exports := make([]ExportView, 0, len(statuses))
	for _, status := range statuses {
		exports = append(exports, s.view(status))
	}
	return exports, nil
}

func (s *ExportService) GetExport(ctx context.Context, exportID string, userID int64) (*ExportView, error) {
	data, err := s.kv.Get(ctx, exportID)
	if errors.Is(err, clients.ErrNotFound) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load export status: %w", err)
	}

	var status ExportStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to parse export status: %w", err)
	}
	if status.UserID != userID {
		return nil, ErrExportNotFound
	}

	v := s.view(status)
	return &v, nil
}

func humanizeEsAgo(t, now time.Time) string {
	if t.After(now) {
		return "justo ahora"
	}

	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "justo ahora"
	}
	if minutes < 60 {
		return fmt.Sprintf("hace %d %s", minutes, esPlural(minutes, "minuto", "minutos"))
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("hace %d %s", hours, esPlural(hours, "hora", "horas"))
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("hace %d %s", days, esPlural(days, "día", "días"))
	}
	return t.Format("02/01/2006 15:04")
}

func esPlural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
