package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conticomp/xprotect-export/internal/auth"
	"github.com/conticomp/xprotect-export/internal/exporter"
	"github.com/conticomp/xprotect-export/internal/msconfig"
	"github.com/conticomp/xprotect-export/internal/registry"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := servicelog.New(servicelog.Options{})
	broker := auth.New(logger, http.DefaultClient, "http://127.0.0.1:1", "user", "pass")
	config := msconfig.New(logger, broker, "http://127.0.0.1:1", false, time.Second)
	reg := registry.New()
	exp := exporter.New(logger, broker, config, reg, exporter.Options{
		ExportDir:       t.TempDir(),
		PipelineDepth:   4,
		ConnectTimeout:  time.Second,
		ReadTimeout:     time.Second,
		EncoderBinary:   "ffmpeg",
		JPEGFallbackFPS: 15,
		MaxRangeSeconds: 600,
	})
	return New(logger, exp, config)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGetExportUnknownIDReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/export/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Tag == "" {
		t.Fatalf("body.Tag is empty")
	}
}

func TestCancelExportUnknownIDReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/export/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDownloadUnknownIDReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/export/does-not-exist/download", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartExportRejectsMissingCameraID(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"camera_id":"","start_time":"2026-01-01T00:00:00Z","end_time":"2026-01-01T00:01:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/export", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStartExportRejectsRangeTooLarge(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"camera_id":"cam-1","start_time":"2026-01-01T00:00:00Z","end_time":"2026-01-01T01:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/export", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStartExportAcceptsValidRequest(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"camera_id":"cam-1","start_time":"2026-01-01T00:00:00Z","end_time":"2026-01-01T00:01:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/export", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var resp startExportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.ExportID == "" {
		t.Fatalf("ExportID is empty")
	}
}
