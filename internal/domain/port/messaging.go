package port

import "context"

// StatusPublisher announces job state changes as JSON-encoded
// entity.AnalysisStatusMessage values.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

// DLQPublisher parks an analysis request that will never succeed, together
// with the reason it was given up on.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
