package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conticomp/xprotect-export/internal/auth"
	"github.com/conticomp/xprotect-export/internal/metrics"
	"github.com/conticomp/xprotect-export/internal/msconfig"
	"github.com/conticomp/xprotect-export/internal/registry"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// Options configures the Exporter's ambient behavior; every field has a
// spec.md-derived default applied by Load (internal/config).
type Options struct {
	ExportDir       string
	PipelineDepth   int
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	EncoderBinary   string
	JPEGFallbackFPS int
	MaxRangeSeconds int
}

// Exporter is the C6 orchestration facade: start(), status(), fetch(),
// cancel() over AuthBroker, ConfigClient, and one worker per job.
type Exporter struct {
	logger servicelog.Logger
	broker *auth.Broker
	config *msconfig.Client
	reg    *registry.Registry
	opts   Options

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Exporter.
func New(logger servicelog.Logger, broker *auth.Broker, config *msconfig.Client, reg *registry.Registry, opts Options) *Exporter {
	return &Exporter{
		logger:  logger,
		broker:  broker,
		config:  config,
		reg:     reg,
		opts:    opts,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start validates the requested range and launches a dedicated worker
// for a new export job, returning its id immediately (spec.md §4.6).
func (e *Exporter) Start(ctx context.Context, cameraID string, t0, t1 time.Time) (string, error) {
	maxRange := time.Duration(e.opts.MaxRangeSeconds) * time.Second
	if t1.Sub(t0) > maxRange || t1.Before(t0) {
		return "", ErrRangeTooLarge
	}

	id := uuid.NewString()
	now := time.Now()
	e.reg.Create(id, cameraID, t0, t1, now)
	metrics.ExportsStarted.Inc()

	jobCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()

	go e.run(jobCtx, id, cameraID, t0, t1)

	return id, nil
}

// Status returns the current job snapshot.
func (e *Exporter) Status(id string) (registry.Job, bool) {
	return e.reg.Get(id)
}

// Fetch returns the path to the completed job's MP4 file.
func (e *Exporter) Fetch(id string) (string, bool) {
	job, ok := e.reg.Get(id)
	if !ok || job.State != registry.StateCompleted {
		return "", false
	}
	return job.OutputPath, true
}

// Cancel signals the worker driving id to tear down (spec.md §5). It is
// a no-op, returning false, if the job is unknown or already terminal.
func (e *Exporter) Cancel(id string) bool {
	if job, found := e.reg.Get(id); found {
		switch job.State {
		case registry.StateCompleted, registry.StateFailed, registry.StateCancelled:
			return false
		}
	}
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (e *Exporter) forgetCancel(id string) {
	e.mu.Lock()
	delete(e.cancels, id)
	e.mu.Unlock()
}

func (e *Exporter) markFailed(id string, err error) {
	now := time.Now()
	state := registry.StateFailed
	tag := string(Classify(err))
	detail := err.Error()
	e.reg.Update(id, registry.Delta{
		State:       &state,
		ErrorTag:    &tag,
		ErrorDetail: &detail,
	}, now)
	metrics.ExportsFinished.WithLabelValues(string(state)).Inc()
	e.logger.Error("export failed", servicelog.String("export_id", id), servicelog.Error(err))
}

func jobOutputPath(exportDir, id string) string {
	return fmt.Sprintf("%s/%s.mp4", exportDir, id)
}
