package port

import "context"

// FailureNotifier tells a user that their recording could not be scored.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, jobID string, videoKey string, errorMsg string) error
}
