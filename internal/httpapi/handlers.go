// Package httpapi is the thin HTTP collaborator spec.md §1 and §6
// describe: camera listing, export lifecycle, and MP4 download,
// fronting the Exporter facade. It carries no domain logic of its own.
package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conticomp/xprotect-export/internal/exporter"
	"github.com/conticomp/xprotect-export/internal/msconfig"
	"github.com/conticomp/xprotect-export/internal/registry"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// Server wires the Exporter and ConfigClient facades to chi routes.
type Server struct {
	logger   servicelog.Logger
	exporter *exporter.Exporter
	config   *msconfig.Client
	router   chi.Router
}

// New builds a Server with every route registered.
func New(logger servicelog.Logger, exp *exporter.Exporter, config *msconfig.Client) *Server {
	s := &Server{logger: logger, exporter: exp, config: config}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/cameras", s.handleListCameras)
	r.Post("/api/export", s.handleStartExport)
	r.Get("/api/export/{id}", s.handleGetExport)
	r.Delete("/api/export/{id}", s.handleCancelExport)
	r.Get("/api/export/{id}/download", s.handleDownload)

	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			servicelog.String("method", r.Method),
			servicelog.String("path", r.URL.Path),
			servicelog.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	tag := exporter.Classify(err)
	writeJSON(w, statusFor(tag), errorBody{Tag: string(tag), Message: err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type cameraView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.config.ListCameras(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]cameraView, 0, len(cameras))
	for _, c := range cameras {
		if !c.Enabled {
			continue
		}
		views = append(views, cameraView{ID: c.ID, Name: c.DisplayName})
	}
	writeJSON(w, http.StatusOK, views)
}

type startExportRequest struct {
	CameraID  string    `json:"camera_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type startExportResponse struct {
	ExportID string `json:"export_id"`
}

func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	var req startExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Tag: "Policy::BadRequest", Message: err.Error()})
		return
	}
	if req.CameraID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Tag: "Policy::BadRequest", Message: "camera_id is required"})
		return
	}
	id, err := s.exporter.Start(r.Context(), req.CameraID, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startExportResponse{ExportID: id})
}

type exportJobView struct {
	ID          string  `json:"id"`
	CameraID    string  `json:"camera_id"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	FramesCount int     `json:"frames_count"`
	Codec       string  `json:"codec,omitempty"`
	ErrorTag    string  `json:"error_tag,omitempty"`
	ErrorDetail string  `json:"error_detail,omitempty"`
}

func viewOf(job registry.Job) exportJobView {
	return exportJobView{
		ID:          job.ID,
		CameraID:    job.CameraID,
		State:       string(job.State),
		Progress:    job.Progress,
		FramesCount: job.FramesCount,
		Codec:       job.Codec,
		ErrorTag:    job.ErrorTag,
		ErrorDetail: job.ErrorDetail,
	}
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.exporter.Status(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Tag: "Config::CameraNotFound", Message: "export not found"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleCancelExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.exporter.Cancel(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Tag: "Config::CameraNotFound", Message: "export not found or already finished"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.exporter.Status(id)
	if !ok || job.State != registry.StateCompleted {
		writeJSON(w, http.StatusNotFound, errorBody{Tag: "Config::CameraNotFound", Message: "export not ready"})
		return
	}
	path, ok := s.exporter.Fetch(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Tag: "Config::CameraNotFound", Message: "export output missing"})
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, id+".mp4", job.UpdatedAt, f)
}
