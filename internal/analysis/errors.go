package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrVideoUnreadable means the video could not be opened or has no frames.
	ErrVideoUnreadable = errors.New("video unreadable")
	// ErrNoPersonDetected means no decoded frame had exactly one person.
	ErrNoPersonDetected = errors.New("no person detected")
	// ErrNoFramesAnalyzed means every sampled frame failed to decode.
	ErrNoFramesAnalyzed = errors.New("no frames analyzed")
)

// IsTerminal reports whether err describes the video itself, as opposed to a
// failing collaborator. Terminal failures are final results; the rest may be
// worth another attempt by whoever drives the pipeline.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrVideoUnreadable) ||
		errors.Is(err, ErrNoPersonDetected) ||
		errors.Is(err, ErrNoFramesAnalyzed)
}

// FailureMessage is the user-facing message for a failed run.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrVideoUnreadable):
		return "Could not open video file."
	case errors.Is(err, ErrNoPersonDetected):
		return "No person detected in the video."
	case errors.Is(err, ErrNoFramesAnalyzed):
		return "No frames could be decoded from the video."
	default:
		return fmt.Sprintf("Analysis failed: %v", err)
	}
}
