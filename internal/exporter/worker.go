package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/conticomp/xprotect-export/internal/encoder"
	"github.com/conticomp/xprotect-export/internal/imageserver"
	"github.com/conticomp/xprotect-export/internal/metrics"
	"github.com/conticomp/xprotect-export/internal/protocol"
	"github.com/conticomp/xprotect-export/internal/registry"
	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// connectResult bundles everything the frame loop needs after a
// successful connect-seek-first-frame sequence.
type connectResult struct {
	conn  *imageserver.Connection
	ids   *imageserver.IDCounter
	pipe  *imageserver.Pipeliner
	frame protocol.Frame
}

// connectAndSeek dials the recorder, issues connect, seeks to t0, and
// reads the first frame. Any Proto::ConnectionBroken failure here is
// eligible for exactly one reconnect (spec.md §7 — "one reconnect
// attempt on Proto::ConnectionBroken before the first frame has been
// emitted"); closing over a fresh Connection each attempt keeps request
// ids and ordering scoped to whichever attempt ultimately succeeds.
func (e *Exporter) connectAndSeek(logger servicelog.Logger, addr, cameraID, imgToken string, window int, t0, t1 time.Time) (connectResult, error) {
	conn, err := imageserver.Dial(logger, addr, e.opts.ConnectTimeout, e.opts.ReadTimeout)
	if err != nil {
		return connectResult{}, err
	}

	ids := imageserver.NewIDCounter()
	if err := conn.Connect(ids, cameraID, imgToken); err != nil {
		conn.Close()
		return connectResult{}, err
	}

	pipe := imageserver.NewPipeliner(conn, ids, window, t1.UnixMilli())
	if err := pipe.Seek(t0.UnixMilli()); err != nil {
		conn.Close()
		return connectResult{}, err
	}

	frame, ok, err := pipe.Next()
	if err != nil {
		conn.Close()
		return connectResult{}, err
	}
	if !ok || frame.CurrentTSMs > t1.UnixMilli() {
		conn.Close()
		return connectResult{}, ErrNoRecordingInRange
	}

	return connectResult{conn: conn, ids: ids, pipe: pipe, frame: frame}, nil
}

func isConnectionBroken(err error) bool {
	return errors.Is(err, protocol.ErrConnectionBroken) || errors.Is(err, imageserver.ErrBroken)
}

// run drives one export job end to end: resolve recorder, acquire
// tokens, connect, seek, stream frames into the encoder, and finalize
// (spec.md §4.6 steps 1-9). It always terminates the job in a terminal
// registry state.
func (e *Exporter) run(ctx context.Context, id, cameraID string, t0, t1 time.Time) {
	defer e.forgetCancel(id)

	started := time.Now()
	defer func() { metrics.ExportDuration.Observe(time.Since(started).Seconds()) }()

	logger := e.logger.With(servicelog.String("export_id", id), servicelog.String("camera_id", cameraID))
	running := registry.StateRunning
	e.reg.Update(id, registry.Delta{State: &running}, time.Now())

	host, port, err := e.config.ResolveRecorder(ctx, cameraID)
	if err != nil {
		e.markFailed(id, err)
		return
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	imgToken, err := e.broker.ImageServerToken(ctx)
	if err != nil {
		e.markFailed(id, err)
		return
	}

	window := imageserver.ClampWindowDepth(e.opts.PipelineDepth)

	cr, err := e.connectAndSeek(logger, addr, cameraID, imgToken, window, t0, t1)
	if err != nil && isConnectionBroken(err) {
		logger.Warn("connection broken before first frame, reconnecting once", servicelog.Error(err))
		cr, err = e.connectAndSeek(logger, addr, cameraID, imgToken, window, t0, t1)
	}
	if err != nil {
		e.markFailed(id, err)
		return
	}
	conn, ids, pipe, frame := cr.conn, cr.ids, cr.pipe, cr.frame
	defer conn.Close()
	defer func() {
		_ = conn.Disconnect(ids)
	}()

	codec, codecID := protocol.Classify(frame)
	if codec == protocol.CodecUnsupported {
		e.markFailed(id, newUnsupportedCodecError(codecID))
		return
	}
	codecName := codec.String()
	e.reg.Update(id, registry.Delta{Codec: &codecName}, time.Now())

	mode := encoder.ModeH264Copy
	if codec == protocol.CodecJpeg {
		mode = encoder.ModeJPEGSequence
	}

	if err := os.MkdirAll(e.opts.ExportDir, 0o755); err != nil {
		e.markFailed(id, fmt.Errorf("encoder: prepare output dir: %w", err))
		return
	}
	finalPath := jobOutputPath(e.opts.ExportDir, id)
	tmpPath := finalPath + ".tmp"

	encoderStarted := time.Now()
	modeName := "h264copy"
	if mode == encoder.ModeJPEGSequence {
		modeName = "jpegsequence"
	}
	enc, err := encoder.Start(ctx, logger, e.opts.EncoderBinary, mode, tmpPath, e.opts.JPEGFallbackFPS)
	if err != nil {
		metrics.EncoderExitErrors.Inc()
		e.markFailed(id, err)
		return
	}
	defer func() { metrics.EncoderDuration.WithLabelValues(modeName).Observe(time.Since(encoderStarted).Seconds()) }()

	framesWritten := 0
	soapTTL := e.broker.SoapTTL()
	lastRefresh := time.Now()
	totalMs := t1.UnixMilli() - t0.UnixMilli()
	if totalMs <= 0 {
		totalMs = 1
	}

	writeFrame := func(f protocol.Frame) error {
		payload := f.Payload
		if codec == protocol.CodecRawH264 {
			_, stripped, err := protocol.ParseProprietaryHeader(f.Payload)
			if err != nil {
				return err
			}
			payload = stripped
		}
		if err := enc.Write(payload); err != nil {
			return err
		}
		framesWritten++
		metrics.FramesEmitted.WithLabelValues(codecName).Inc()
		progress := float64(f.CurrentTSMs-t0.UnixMilli()) / float64(totalMs)
		if progress > 1 {
			progress = 1
		}
		if progress < 0 {
			progress = 0
		}
		frames := framesWritten
		e.reg.Update(id, registry.Delta{FramesCount: &frames, Progress: &progress}, time.Now())
		return nil
	}

	if frame.CurrentTSMs <= t1.UnixMilli() {
		if err := writeFrame(frame); err != nil {
			enc.Abort()
			e.markFailed(id, err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			enc.Abort()
			e.markFailed(id, ErrCancelled)
			return
		default:
		}

		if soapTTL > 0 && time.Since(lastRefresh) > soapTTL/2 {
			// connectupdate must not be pipelined with image requests
			// (spec.md §4.5 point 5): quiesce the window, emit whatever
			// it drains, send the update and wait for its ack, then
			// re-prime the window before resuming.
			drained, err := pipe.Quiesce()
			if err != nil {
				enc.Abort()
				e.markFailed(id, err)
				return
			}
			for _, f := range drained {
				if f.CurrentTSMs > t1.UnixMilli() {
					continue
				}
				if err := writeFrame(f); err != nil {
					enc.Abort()
					e.markFailed(id, err)
					return
				}
			}

			newToken, err := e.broker.RefreshImageServerToken(ctx)
			if err != nil {
				enc.Abort()
				e.markFailed(id, err)
				return
			}
			if err := conn.ConnectUpdate(ids, newToken); err != nil {
				enc.Abort()
				e.markFailed(id, err)
				return
			}
			lastRefresh = time.Now()

			if err := pipe.Refill(); err != nil {
				enc.Abort()
				e.markFailed(id, err)
				return
			}
		}

		metrics.PipelineDepth.Set(float64(pipe.InFlight()))

		next, ok, err := pipe.Next()
		if err != nil {
			enc.Abort()
			e.markFailed(id, err)
			return
		}
		if !ok {
			break
		}
		if next.CurrentTSMs > t1.UnixMilli() {
			continue
		}
		if err := writeFrame(next); err != nil {
			enc.Abort()
			e.markFailed(id, err)
			return
		}
	}

	// Termination leaves the window holding whatever requests were
	// already sent before the terminal frame was detected; drain their
	// responses so Disconnect's ReadMethodResponse doesn't misread a
	// pending ImageResponse as its ack (spec.md §4.5 point 5).
	if _, err := pipe.Quiesce(); err != nil {
		enc.Abort()
		e.markFailed(id, err)
		return
	}

	if err := enc.Finish(); err != nil {
		metrics.EncoderExitErrors.Inc()
		e.markFailed(id, err)
		return
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		e.markFailed(id, fmt.Errorf("encoder: finalize output: %w", err))
		return
	}

	completed := registry.StateCompleted
	frames := framesWritten
	finalProgress := 1.0
	e.reg.Update(id, registry.Delta{State: &completed, FramesCount: &frames, OutputPath: &finalPath, Progress: &finalProgress}, time.Now())
	metrics.ExportsFinished.WithLabelValues(string(completed)).Inc()
	logger.Info("export completed", servicelog.Int("frames", framesWritten))
}
