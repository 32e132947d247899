package port

import "context"

// Perception creates detector sessions. A session belongs to a single video:
// implementations must not carry tracker state from one session to the next.
type Perception interface {
	NewSession(ctx context.Context) (PerceptionSession, error)
}

type PerceptionSession interface {
	// DetectPersons returns the number of detections of the person class.
	DetectPersons(ctx context.Context, frame []byte) (int, error)
	// DetectFace returns the number of face landmark sets found.
	DetectFace(ctx context.Context, frame []byte) (int, error)
	// DetectHands returns the number of hand landmark sets found.
	DetectHands(ctx context.Context, frame []byte) (int, error)
	DetectPose(ctx context.Context, frame []byte) (bool, error)
	Close() error
}
