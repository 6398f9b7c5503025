package service

import (
	"context"

	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/report"
)

type TableProvider interface {
	Table(ctx context.Context, userID int64, id string) (*Session, *kpi.Table, error)
}

type SectionBuilder interface {
	Build(ctx context.Context, t *kpi.Table, f kpi.Filter, keys ...string) ([]report.Section, error)
}

// DashboardService computes dashboard sections over a session's table.
type DashboardService struct {
	sessions TableProvider
	builder  SectionBuilder
}

func NewDashboardService(sessions TableProvider, builder SectionBuilder) *DashboardService {
	return &DashboardService{
		sessions: sessions,
		builder:  builder,
	}
}

// Dashboard builds the sections named by keys, or the whole catalog.
func (s *DashboardService) Dashboard(ctx context.Context, userID int64, sessionID string, f kpi.Filter, keys ...string) ([]report.Section, error) {
	_, t, err := s.sessions.Table(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, t, f, keys...)
}

func (s *DashboardService) Section(ctx context.Context, userID int64, sessionID, key string, f kpi.Filter) (report.Section, error) {
	if _, err := report.Lookup(key); err != nil {
		return report.Section{}, err
	}
	sections, err := s.Dashboard(ctx, userID, sessionID, f, key)
	if err != nil {
		return report.Section{}, err
	}
	return sections[0], nil
}
