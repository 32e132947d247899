package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fiapx/fiapx-nonverbal-service/internal/analysis"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
	"github.com/google/uuid"
)

type memRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
}

func newMemRepo() *memRepo { return &memRepo{jobs: map[uuid.UUID]entity.Job{}} }

func (r *memRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &job, nil
}

func (r *memRepo) get(id uuid.UUID) entity.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

type fakeStorage struct {
	downloadErr error
	uploadErr   error
	downloaded  []string
	reports     map[string][]byte
}

func newFakeStorage() *fakeStorage { return &fakeStorage{reports: map[string][]byte{}} }

func (s *fakeStorage) DownloadVideo(_ context.Context, key, dest string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloaded = append(s.downloaded, key)
	return os.WriteFile(dest, []byte("video"), 0o644)
}

func (s *fakeStorage) UploadReport(_ context.Context, key string, r io.Reader, _ int64) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.reports[key] = data
	return nil
}

type fakeProber struct {
	duration float64
	err      error
}

func (p fakeProber) ProbeDuration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

type fakeAnalyzer struct {
	report *analysis.Report
	err    error
	calls  int
	paths  []string
}

func (a *fakeAnalyzer) AnalyzeFile(_ context.Context, path string) (*analysis.Report, error) {
	a.calls++
	a.paths = append(a.paths, path)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New("video not downloaded")
	}
	return a.report, a.err
}

type recordingPublisher struct {
	messages [][]byte
	err      error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.messages = append(p.messages, msg)
	return p.err
}

type recordingDLQ struct {
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, email, _, _, _ string) error {
	n.sent = append(n.sent, email)
	return nil
}
