package clients

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetURL_AbsoluteAndRelative(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := NewLocalStorage(tmpDir, "/files", "http://example.com:8060/")
	if err != nil {
		t.Fatalf("failed create storage: %v", err)
	}
	if got, want := c.GetURL("a.xlsx"), "http://example.com:8060/files/a.xlsx"; got != want {
		t.Fatalf("expected %s; got %s", want, got)
	}

	c2, _ := NewLocalStorage(tmpDir, "files/", "")
	if got := c2.GetURL("b.xlsx"); got != "/files/b.xlsx" {
		t.Fatalf("expected /files/b.xlsx; got %s", got)
	}
}

func TestStoreAndServe(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}

	content := []byte("hello world")
	url, err := c.Store(context.Background(), "kpi report.xlsx", content)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(url, "/files/") || !strings.HasSuffix(url, "_kpi report.xlsx") {
		t.Fatalf("unexpected url %s", url)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, original, err := c.Resolve(strings.TrimPrefix(r.URL.Path, "/files/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+original+"\"")
		http.ServeFile(w, r, path)
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + strings.ReplaceAll(url, " ", "%20"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bad status: %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "kpi report.xlsx") {
		t.Fatalf("expected Content-Disposition with original filename, got %s", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(content) {
		t.Fatalf("content mismatch: %s", string(body))
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	c, _ := NewLocalStorage(t.TempDir(), "/files", "")
	for _, name := range []string{"", "../secret", "a/b.xlsx", "missing.xlsx"} {
		if _, _, err := c.Resolve(name); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Resolve(%q) = %v, want not exist", name, err)
		}
	}
}

func TestCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewLocalStorage(dir, "/files", "")

	old := filepath.Join(dir, "old.xlsx")
	fresh := filepath.Join(dir, "fresh.xlsx")
	_ = os.WriteFile(old, []byte("x"), 0o644)
	_ = os.WriteFile(fresh, []byte("y"), 0o644)
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	n, err := c.CleanupOlderThan(time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}
