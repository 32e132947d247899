package usecase

import (
	"context"
	"errors"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
)

// FanoutPublisher delivers each status message to every publisher. All
// publishers are attempted; their errors are joined.
type FanoutPublisher []port.StatusPublisher

func (f FanoutPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishStatus(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
