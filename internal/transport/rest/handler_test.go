package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"debtster-kpi/internal/ingest"
	"debtster-kpi/internal/kpi"
	"debtster-kpi/internal/report"
	"debtster-kpi/internal/repository"
	"debtster-kpi/internal/service"
	"debtster-kpi/internal/transport/auth"
	"debtster-kpi/pkg/logger"
)

type fakeSessions struct {
	uploaded   string
	uploadBody string
	imported   repository.RecordsFilter
	createErr  error
}

func (f *fakeSessions) Create(_ context.Context, userID int64, fileName string, r io.Reader) (*service.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	body, _ := io.ReadAll(r)
	f.uploaded, f.uploadBody = fileName, string(body)
	return &service.Session{ID: "s1", UserID: userID, FileName: fileName}, nil
}

func (f *fakeSessions) Replace(_ context.Context, userID int64, id, fileName string, _ io.Reader) (*service.Session, error) {
	if id != "s1" {
		return nil, service.ErrSessionNotFound
	}
	return &service.Session{ID: id, UserID: userID, FileName: fileName}, nil
}

func (f *fakeSessions) CreateFromDatabase(_ context.Context, userID int64, filter repository.RecordsFilter) (*service.Session, error) {
	f.imported = filter
	return &service.Session{ID: "db", UserID: userID, Source: service.SourceDatabase}, nil
}

func (f *fakeSessions) Get(_ context.Context, userID int64, id string) (*service.Session, error) {
	if id != "s1" || userID != 1 {
		return nil, service.ErrSessionNotFound
	}
	return &service.Session{ID: id, UserID: userID}, nil
}

func (f *fakeSessions) Delete(ctx context.Context, userID int64, id string) error {
	_, err := f.Get(ctx, userID, id)
	return err
}

func (f *fakeSessions) Filters(_ context.Context, _ int64, _ string) (*service.FilterOptions, error) {
	return &service.FilterOptions{Agents: []string{"Ana"}, Queues: []string{"Q1"}}, nil
}

type fakeDashboard struct {
	filter kpi.Filter
	keys   []string
}

func (f *fakeDashboard) Dashboard(_ context.Context, _ int64, sessionID string, filter kpi.Filter, keys ...string) ([]report.Section, error) {
	if sessionID != "s1" {
		return nil, service.ErrSessionNotFound
	}
	f.filter, f.keys = filter, keys
	return []report.Section{{Key: "overview", Status: report.StatusOK}}, nil
}

func (f *fakeDashboard) Section(_ context.Context, _ int64, _, key string, filter kpi.Filter) (report.Section, error) {
	if _, err := report.Lookup(key); err != nil {
		return report.Section{}, err
	}
	f.filter = filter
	return report.Section{Key: key, Status: report.StatusEmpty}, nil
}

type fakeReports struct {
	keys []string
}

func (f *fakeReports) Start(_ context.Context, _ int64, _ string, _ kpi.Filter, keys []string) (string, error) {
	f.keys = keys
	return "exports:abc", nil
}

type fakeExports struct{}

func (fakeExports) GetExports(_ context.Context, userID int64) ([]service.ExportView, error) {
	return []service.ExportView{{Key: "exports:abc", UserID: userID}}, nil
}

func (fakeExports) GetExport(_ context.Context, exportID string, userID int64) (*service.ExportView, error) {
	if exportID != "exports:abc" {
		return nil, service.ErrExportNotFound
	}
	return &service.ExportView{Key: exportID, UserID: userID}, nil
}

type dirFiles string

func (d dirFiles) Resolve(stored string) (string, string, error) {
	if stored != filepath.Base(stored) {
		return "", "", fs.ErrNotExist
	}
	path := filepath.Join(string(d), stored)
	if _, err := os.Stat(path); err != nil {
		return "", "", err
	}
	return path, strings.TrimPrefix(stored, "x_"), nil
}

func asUser(id int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), id)))
		})
	}
}

type testServer struct {
	*httptest.Server
	sessions  *fakeSessions
	dashboard *fakeDashboard
	reports   *fakeReports
}

func newTestServer(t *testing.T, deps Deps) *testServer {
	t.Helper()
	ts := &testServer{
		sessions:  &fakeSessions{},
		dashboard: &fakeDashboard{},
		reports:   &fakeReports{},
	}
	if deps.Sessions == nil {
		deps.Sessions = ts.sessions
	}
	deps.Dashboard = ts.dashboard
	deps.Reports = ts.reports
	deps.ExportList = fakeExports{}
	deps.Log = logger.Module("test")

	h := NewHandler(deps)
	ts.Server = httptest.NewServer(h.InitRouterWithAuth(asUser(1)))
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func do(t *testing.T, method, url string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func multipartBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Deps{})
	resp := do(t, http.MethodGet, ts.URL+"/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out := decode(t, resp); out.Status != "success" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
}

func TestHealthReportsDependencies(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return fmt.Errorf("dial tcp: connection refused") })

	t.Run("all up", func(t *testing.T) {
		ts := newTestServer(t, Deps{Health: map[string]Pinger{"kv": up, "postgres": up}})
		resp := do(t, http.MethodGet, ts.URL+"/health", nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		data, _ := decode(t, resp).Data.(map[string]any)
		if data["kv"] != "up" || data["postgres"] != "up" {
			t.Fatalf("unexpected state: %v", data)
		}
	})

	t.Run("kv down", func(t *testing.T) {
		ts := newTestServer(t, Deps{Health: map[string]Pinger{"kv": down, "postgres": up}})
		resp := do(t, http.MethodGet, ts.URL+"/health", nil, "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}
		out := decode(t, resp)
		if out.Status != "error" || out.ErrorCode != 503 {
			t.Fatalf("unexpected envelope: %+v", out)
		}
		data, _ := out.Data.(map[string]any)
		if data["kv"] != "down" || data["postgres"] != "up" {
			t.Fatalf("unexpected state: %v", data)
		}
	})
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t, Deps{})
	body, ct := multipartBody(t, "pagos.xlsx", "xlsx-bytes")

	resp := do(t, http.MethodPost, ts.URL+"/sessions", body, ct)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	out := decode(t, resp)
	data := out.Data.(map[string]any)
	if data["id"] != "s1" || data["file_name"] != "pagos.xlsx" {
		t.Fatalf("unexpected session: %+v", data)
	}
	if ts.sessions.uploadBody != "xlsx-bytes" {
		t.Fatalf("service received %q", ts.sessions.uploadBody)
	}
}

func TestCreateSession_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		ts := newTestServer(t, Deps{})
		resp := do(t, http.MethodPost, ts.URL+"/sessions", strings.NewReader("{}"), "application/json")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("too large", func(t *testing.T) {
		ts := newTestServer(t, Deps{UploadLimit: 64})
		body, ct := multipartBody(t, "big.xlsx", strings.Repeat("x", 4096))
		resp := do(t, http.MethodPost, ts.URL+"/sessions", body, ct)
		if resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", resp.StatusCode)
		}
	})

	t.Run("unreadable workbook", func(t *testing.T) {
		sessions := &fakeSessions{createErr: fmt.Errorf("%w: zip: not a valid zip file", ingest.ErrUnsupportedFile)}
		ts := newTestServer(t, Deps{Sessions: sessions})
		body, ct := multipartBody(t, "notes.txt", "hello")
		resp := do(t, http.MethodPost, ts.URL+"/sessions", body, ct)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", resp.StatusCode)
		}
	})
}

func TestReplaceSessionFile(t *testing.T) {
	ts := newTestServer(t, Deps{})

	body, ct := multipartBody(t, "nuevo.xlsx", "data")
	resp := do(t, http.MethodPut, ts.URL+"/sessions/s1/file", body, ct)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, ct = multipartBody(t, "nuevo.xlsx", "data")
	resp = do(t, http.MethodPut, ts.URL+"/sessions/other/file", body, ct)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestImportSession(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp := do(t, http.MethodPost, ts.URL+"/sessions/import",
		strings.NewReader(`{"start_date":"2024-01-01","end_date":"2024-01-31","queue":" Q1 "}`), "application/json")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	got := ts.sessions.imported
	if got.From == nil || !got.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from: %v", got.From)
	}
	if got.Queue != "Q1" {
		t.Fatalf("queue should be trimmed, got %q", got.Queue)
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	ts := newTestServer(t, Deps{})

	if resp := do(t, http.MethodGet, ts.URL+"/sessions/s1", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, ts.URL+"/sessions/nope", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if out := decode(t, resp); out.ErrorCode != 404 || out.Status != "error" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/sessions/s1", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/sessions/s1/filters", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp := do(t, http.MethodGet, ts.URL+"/sessions/s1/dashboard?start_date=2024-01-01&end_date=2024-01-31&agent=Ana&kpi=overview,nsr_rr&kpi=lpr_acp", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	f := ts.dashboard.filter
	if f.From == nil || f.To == nil || f.Agent != "Ana" {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if want := []string{"overview", "nsr_rr", "lpr_acp"}; fmt.Sprint(ts.dashboard.keys) != fmt.Sprint(want) {
		t.Fatalf("keys = %v, want %v", ts.dashboard.keys, want)
	}
}

func TestDashboard_Validation(t *testing.T) {
	ts := newTestServer(t, Deps{})

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"bad date", "start_date=01/02/2024", "start_date"},
		{"reversed range", "start_date=2024-02-01&end_date=2024-01-01", "start_date"},
		{"unknown kpi", "kpi=overview,bogus", "kpi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, ts.URL+"/sessions/s1/dashboard?"+tt.query, nil, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			out := decode(t, resp)
			data, ok := out.Data.(map[string]any)
			if !ok || data["field"] != tt.field {
				t.Fatalf("expected field %q, got %+v", tt.field, out.Data)
			}
		})
	}
}

func TestSection(t *testing.T) {
	ts := newTestServer(t, Deps{})

	if resp := do(t, http.MethodGet, ts.URL+"/sessions/s1/kpi/overview?queue=Q1", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ts.dashboard.filter.Queue != "Q1" {
		t.Fatalf("filter not forwarded: %+v", ts.dashboard.filter)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/sessions/s1/kpi/bogus", nil, ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListKPIs(t *testing.T) {
	ts := newTestServer(t, Deps{})

	out := decode(t, do(t, http.MethodGet, ts.URL+"/kpis", nil, ""))
	items := out.Data.([]any)
	if len(items) != len(report.Catalog()) {
		t.Fatalf("expected %d kpis, got %d", len(report.Catalog()), len(items))
	}
	if first := items[0].(map[string]any); first["key"] != "overview" {
		t.Fatalf("unexpected first kpi: %+v", first)
	}
}

func TestExports(t *testing.T) {
	ts := newTestServer(t, Deps{})

	resp := do(t, http.MethodPost, ts.URL+"/sessions/s1/export", strings.NewReader(`{"kpi":["overview"]}`), "application/json")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if out := decode(t, resp); out.Data.(map[string]any)["export_id"] != "exports:abc" {
		t.Fatalf("unexpected data: %+v", out.Data)
	}
	if fmt.Sprint(ts.reports.keys) != "[overview]" {
		t.Fatalf("keys = %v", ts.reports.keys)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/export", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/export/abc", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/export/zzz", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestServeFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x_report.xlsx"), []byte("xlsx"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, Deps{Files: dirFiles(dir)})

	resp := do(t, http.MethodGet, ts.URL+"/files/x_report.xlsx", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="report.xlsx"` {
		t.Fatalf("unexpected disposition: %q", cd)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/files/missing.xlsx", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := NewHandler(Deps{Sessions: &fakeSessions{}, Log: logger.Module("test")})
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ErrorUnauthorized(w, "Unauthorized")
		})
	}
	ts := httptest.NewServer(h.InitRouterWithAuth(deny))
	defer ts.Close()

	if resp := do(t, http.MethodGet, ts.URL+"/health", nil, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/sessions/s1", nil, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
