package port

import (
	"context"
	"errors"
)

// ErrFrameUnavailable is returned by Video.Frame when the frame at the
// requested index cannot be decoded. Callers skip the frame.
var ErrFrameUnavailable = errors.New("frame unavailable")

// Video is an opened, decodable video with a frame count known up front.
type Video interface {
	TotalFrames() int
	// Frame returns the encoded image (JPEG) at index.
	Frame(ctx context.Context, index int) ([]byte, error)
	Close() error
}

type VideoOpener interface {
	Open(ctx context.Context, path string) (Video, error)
}

// DurationProber reports the container duration in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}
