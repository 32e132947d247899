package perception

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"github.com/fiapx/fiapx-nonverbal-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// Config describes how to launch the detector worker.
type Config struct {
	Command string
	Args    []string
	// Timeout bounds a single detector call; zero disables it.
	Timeout time.Duration
}

// WorkerPerception runs person, face, hand and pose detection in an external
// worker process. Every session gets its own process, so landmark trackers
// inside the worker start clean for each video.
type WorkerPerception struct {
	cfg    Config
	logger *zap.Logger
}

func NewWorkerPerception(cfg Config, logger *zap.Logger) *WorkerPerception {
	return &WorkerPerception{cfg: cfg, logger: logger}
}

func (p *WorkerPerception) NewSession(ctx context.Context) (port.PerceptionSession, error) {
	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	// Replies travel over a side pipe that the worker sees as FD 3, which
	// keeps its stdout free for logging.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create reply pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("start perception worker: %w", err)
	}
	w.Close()

	p.logger.Debug("perception worker started", zap.Int("pid", cmd.Process.Pid))

	return &workerSession{
		cmd:     cmd,
		stdin:   stdin,
		replies: r,
		stderr:  stderr,
		timeout: p.cfg.Timeout,
		logger:  p.logger,
	}, nil
}

type workerSession struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies io.ReadCloser
	stderr  *syncBuffer
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *workerSession) DetectPersons(ctx context.Context, frame []byte) (int, error) {
	rep, err := s.call(ctx, opPersons, frame)
	return rep.Count, err
}

func (s *workerSession) DetectFace(ctx context.Context, frame []byte) (int, error) {
	rep, err := s.call(ctx, opFace, frame)
	return rep.Count, err
}

func (s *workerSession) DetectHands(ctx context.Context, frame []byte) (int, error) {
	rep, err := s.call(ctx, opHands, frame)
	return rep.Count, err
}

func (s *workerSession) DetectPose(ctx context.Context, frame []byte) (bool, error) {
	rep, err := s.call(ctx, opPose, frame)
	return rep.Found, err
}

// call performs one request/reply exchange. Calls on a session are
// serialized; a timed-out or cancelled call kills the worker, after which the
// session is unusable.
func (s *workerSession) call(ctx context.Context, op string, frame []byte) (reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return reply{}, fmt.Errorf("%s: session closed", op)
	}

	start := time.Now()
	done := make(chan struct{})
	var rep reply
	var err error
	go func() {
		defer close(done)
		if err = writeMessage(s.stdin, request{Op: op, Frame: frame}); err != nil {
			return
		}
		err = readMessage(s.replies, &rep)
	}()

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
	case <-ctx.Done():
		s.kill()
		<-done
		return reply{}, ctx.Err()
	case <-timeout:
		s.kill()
		<-done
		metrics.DetectorCallsTotal.WithLabelValues(op, "timeout").Inc()
		return reply{}, fmt.Errorf("%s: worker timed out after %s", op, s.timeout)
	}

	metrics.DetectorCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DetectorCallsTotal.WithLabelValues(op, "error").Inc()
		return reply{}, s.crashError(op, err)
	}
	if !rep.OK {
		metrics.DetectorCallsTotal.WithLabelValues(op, "error").Inc()
		return reply{}, fmt.Errorf("%s: perception worker error: %s", op, rep.Error)
	}
	metrics.DetectorCallsTotal.WithLabelValues(op, "ok").Inc()
	return rep, nil
}

func (s *workerSession) crashError(op string, err error) error {
	if s.stderr != nil {
		if out := strings.TrimSpace(s.stderr.String()); out != "" {
			return fmt.Errorf("%s: %w (worker stderr: %s)", op, err, out)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *workerSession) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.stdin.Close()
	s.replies.Close()
}

// Close ends the worker by closing its stdin and waits for it to exit.
func (s *workerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.stdin.Close()
	s.replies.Close()
	if s.cmd == nil {
		return nil
	}
	if err := s.cmd.Wait(); err != nil {
		s.logger.Debug("perception worker exited", zap.Error(err))
	}
	return nil
}

// syncBuffer collects worker stderr; exec writes it from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
