package rest

import (
	"context"
	"io"
	"net/http"
	"time"

	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/report"
	"debtster-kpi/internal/repository"
	"debtster-kpi/internal/service"
	"debtster-kpi/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type SessionManager interface {
	Create(ctx context.Context, userID int64, fileName string, r io.Reader) (*service.Session, error)
	Replace(ctx context.Context, userID int64, id, fileName string, r io.Reader) (*service.Session, error)
	CreateFromDatabase(ctx context.Context, userID int64, f repository.RecordsFilter) (*service.Session, error)
	Get(ctx context.Context, userID int64, id string) (*service.Session, error)
	Delete(ctx context.Context, userID int64, id string) error
	Filters(ctx context.Context, userID int64, id string) (*service.FilterOptions, error)
}

type Dashboarder interface {
	Dashboard(ctx context.Context, userID int64, sessionID string, f kpi.Filter, keys ...string) ([]report.Section, error)
	Section(ctx context.Context, userID int64, sessionID, key string, f kpi.Filter) (report.Section, error)
}

type ReportExporter interface {
	Start(ctx context.Context, userID int64, sessionID string, f kpi.Filter, keys []string) (string, error)
}

type ExportListService interface {
	GetExports(ctx context.Context, userID int64) ([]service.ExportView, error)
	GetExport(ctx context.Context, exportID string, userID int64) (*service.ExportView, error)
}

// FileResolver maps a stored report name to a file on disk.
type FileResolver interface {
	Resolve(stored string) (path, original string, err error)
}

type WebSocketServer interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, userID int64)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Sessions   SessionManager
	Dashboard  Dashboarder
	Reports    ReportExporter
	ExportList ExportListService
	Files      FileResolver
	WebSocket  WebSocketServer
	Metrics    http.Handler
	Health     map[string]Pinger

	UploadLimit int64
	Location    *time.Location
	Log         *logrus.Entry
}

type Handler struct {
	sessions   SessionManager
	dashboard  Dashboarder
	reports    ReportExporter
	exportList ExportListService
	files      FileResolver
	ws         WebSocketServer
	metrics    http.Handler
	health     map[string]Pinger

	uploadLimit int64
	loc         *time.Location
	log         *logrus.Entry
}

func NewHandler(d Deps) *Handler {
	if d.UploadLimit <= 0 {
		d.UploadLimit = 32 << 20
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Log == nil {
		d.Log = logger.Get().WithFields(nil)
	}
	return &Handler{
		sessions:    d.Sessions,
		dashboard:   d.Dashboard,
		reports:     d.Reports,
		exportList:  d.ExportList,
		files:       d.Files,
		ws:          d.WebSocket,
		metrics:     d.Metrics,
		health:      d.Health,
		uploadLimit: d.UploadLimit,
		loc:         d.Location,
		log:         d.Log.WithField("module", "http"),
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth mounts the public routes and guards everything else with
// authMiddleware.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", h.healthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.files != nil {
		r.Get("/files/{file}", h.serveFile)
	}

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		if h.ws != nil {
			r.Get("/ws", h.websocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/kpis", h.listKPIs)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.createSession)
				r.Post("/import", h.importSession)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.getSession)
					r.Delete("/", h.deleteSession)
					r.Put("/file", h.replaceSessionFile)
					r.Get("/filters", h.sessionFilters)
					r.Get("/dashboard", h.getDashboard)
					r.Get("/kpi/{key}", h.getSection)
					r.Post("/export", h.exportReport)
				})
			})

			r.Route("/export", func(r chi.Router) {
				r.Get("/", h.listExports)
				r.Get("/{export_id}", h.getExport)
			})
		})
	})

	return r
}

// healthCheck pings every registered dependency. Any failure answers 503
// with the per-dependency state in data.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	state := make(map[string]string, len(h.health))
	healthy := true
	for name, p := range h.health {
		if err := p.Ping(r.Context()); err != nil {
			h.log.WithError(err).WithField("dependency", name).Warn("health check failed")
			state[name] = "down"
			healthy = false
			continue
		}
		state[name] = "up"
	}
	if !healthy {
		Response(w, "unhealthy", state, 503, "error", http.StatusServiceUnavailable)
		return
	}
	Success(w, "ok", state)
}
