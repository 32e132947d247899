package analysis

import (
	"context"
	"errors"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
)

// fakeVideo serves frame index i as the single byte i%256; indices listed in
// broken are undecodable.
type fakeVideo struct {
	total  int
	broken map[int]bool
	reads  []int
	closed bool
}

func (v *fakeVideo) TotalFrames() int { return v.total }

func (v *fakeVideo) Frame(_ context.Context, index int) ([]byte, error) {
	v.reads = append(v.reads, index)
	if v.broken[index] {
		return nil, port.ErrFrameUnavailable
	}
	return []byte{byte(index)}, nil
}

func (v *fakeVideo) Close() error {
	v.closed = true
	return nil
}

type fakeOpener struct {
	video *fakeVideo
	err   error
}

func (o *fakeOpener) Open(context.Context, string) (port.Video, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.video, nil
}

// fakePerception answers every frame with the same scripted detection unless
// byFrame overrides it (keyed by the frame's first byte).
type fakePerception struct {
	def      entity.Detection
	byFrame  map[byte]entity.Detection
	failOn   string
	sessions []*fakeSession
}

func (p *fakePerception) NewSession(context.Context) (port.PerceptionSession, error) {
	s := &fakeSession{p: p}
	p.sessions = append(p.sessions, s)
	return s, nil
}

type fakeSession struct {
	p      *fakePerception
	calls  map[string]int
	closed bool
}

var errDetector = errors.New("detector crashed")

func (s *fakeSession) lookup(op string, frame []byte) (entity.Detection, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[op]++
	if s.p.failOn == op {
		return entity.Detection{}, errDetector
	}
	if d, ok := s.p.byFrame[frame[0]]; ok {
		return d, nil
	}
	return s.p.def, nil
}

func (s *fakeSession) DetectPersons(_ context.Context, frame []byte) (int, error) {
	d, err := s.lookup("persons", frame)
	return d.PersonCount, err
}

func (s *fakeSession) DetectFace(_ context.Context, frame []byte) (int, error) {
	d, err := s.lookup("face", frame)
	return d.Faces, err
}

func (s *fakeSession) DetectHands(_ context.Context, frame []byte) (int, error) {
	d, err := s.lookup("hands", frame)
	return d.Hands, err
}

func (s *fakeSession) DetectPose(_ context.Context, frame []byte) (bool, error) {
	d, err := s.lookup("pose", frame)
	return d.Pose, err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}
