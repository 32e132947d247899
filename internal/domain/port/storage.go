package port

import (
	"context"
	"errors"
	"io"
)

// ErrEmptyVideo is returned by DownloadVideo when the uploaded object has no
// content. Retrying cannot help.
var ErrEmptyVideo = errors.New("uploaded video is empty")

// VideoStorage fetches uploaded recordings and stores analysis reports.
type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadReport(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
