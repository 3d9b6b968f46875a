package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/conticomp/xprotect-export/internal/servicelog"
)

// Mode selects the ffmpeg argument set EncoderPipe builds (spec.md §4.6).
type Mode int

const (
	// ModeH264Copy remuxes incoming Annex-B H.264 NAL payloads straight
	// into MP4 without re-encoding.
	ModeH264Copy Mode = iota
	// ModeJPEGSequence encodes a sequence of JPEG images at a nominal
	// frame rate into MP4, used when the source is not H.264.
	ModeJPEGSequence
)

const stderrRingDepth = 64

// EncoderPipe owns one ffmpeg subprocess, write-only from the caller's
// side: payloads are written to its stdin and it produces the final
// MP4 file on disk. Its stderr is captured into a bounded ring for
// inclusion in error reports (spec.md §4.6).
type EncoderPipe struct {
	logger servicelog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	mu       sync.Mutex
	finished bool
	stderr   []string // bounded to stderrRingDepth lines, oldest dropped first
	waitErr  error
	waitDone chan struct{}
}

// Start spawns ffmpeg in the given mode, writing its final container to
// outputPath. jpegFPS is only used in ModeJPEGSequence.
func Start(ctx context.Context, logger servicelog.Logger, binary string, mode Mode, outputPath string, jpegFPS int) (*EncoderPipe, error) {
	args := buildArgs(mode, outputPath, jpegFPS)
	cmd := exec.CommandContext(ctx, binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder: start %s: %w", binary, err)
	}

	p := &EncoderPipe{
		logger:   logger,
		cmd:      cmd,
		stdin:    stdin,
		waitDone: make(chan struct{}),
	}
	go p.drainStderr(stderr)
	go p.waitProcess()
	return p, nil
}

func buildArgs(mode Mode, outputPath string, jpegFPS int) []string {
	switch mode {
	case ModeJPEGSequence:
		if jpegFPS <= 0 {
			jpegFPS = 15
		}
		return []string{
			"-loglevel", "warning",
			"-f", "image2pipe",
			"-framerate", strconv.Itoa(jpegFPS),
			"-i", "pipe:0",
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-movflags", "+faststart",
			"-y", outputPath,
		}
	default:
		return []string{
			"-loglevel", "warning",
			"-f", "h264",
			"-i", "pipe:0",
			"-c:v", "copy",
			"-movflags", "+faststart",
			"-y", outputPath,
		}
	}
}

func (p *EncoderPipe) drainStderr(r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		p.stderr = append(p.stderr, line)
		if len(p.stderr) > stderrRingDepth {
			p.stderr = p.stderr[len(p.stderr)-stderrRingDepth:]
		}
		p.mu.Unlock()
		p.logger.Debug("encoder stderr", servicelog.String("line", line))
	}
}

func (p *EncoderPipe) waitProcess() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.waitDone)
}

// Write sends a chunk of encoder input (NAL units in ModeH264Copy, one
// JPEG image per call in ModeJPEGSequence). It blocks when the OS pipe
// buffer is full, providing the backpressure spec.md §5 describes.
func (p *EncoderPipe) Write(payload []byte) error {
	p.mu.Lock()
	finished := p.finished
	p.mu.Unlock()
	if finished {
		return ErrAlreadyFinished
	}
	_, err := p.stdin.Write(payload)
	if err != nil {
		return fmt.Errorf("encoder: write: %w", err)
	}
	return nil
}

// Finish closes stdin, asking ffmpeg to finalize whatever it has
// received so far, and waits for it to exit.
func (p *EncoderPipe) Finish() error {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return nil
	}
	p.finished = true
	p.mu.Unlock()

	_ = p.stdin.Close()
	<-p.waitDone

	p.mu.Lock()
	waitErr := p.waitErr
	p.mu.Unlock()
	if waitErr != nil {
		return fmt.Errorf("%w: %v: %s", ErrExitNonZero, waitErr, p.StderrTail())
	}
	return nil
}

// Abort kills the underlying process without waiting for it to finish
// its output, used on cancellation (spec.md §5 — "never leaves zombie
// encoder processes").
func (p *EncoderPipe) Abort() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.waitDone
}

// StderrTail returns the captured trailing stderr lines, oldest first,
// joined for inclusion in an error report.
func (p *EncoderPipe) StderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.stderr, "\n")
}
