package analysis

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/port"
)

// Classify turns a detection into a frame record. Landmarks only count when
// exactly one person is in frame; with nobody or several people there is no
// way to tell whose face or hands were found.
func Classify(d entity.Detection) entity.FrameRecord {
	if d.PersonCount != 1 {
		return entity.FrameRecord{}
	}
	return entity.FrameRecord{
		FaceDetected:  d.Faces > 0,
		HandsDetected: d.Hands > 0,
		PoseDetected:  d.Pose,
	}
}

// detect runs the person detector and, only for single-person frames, the
// three landmark detectors.
func detect(ctx context.Context, session port.PerceptionSession, frame []byte) (entity.Detection, error) {
	var d entity.Detection

	persons, err := session.DetectPersons(ctx, frame)
	if err != nil {
		return d, fmt.Errorf("detect persons: %w", err)
	}
	d.PersonCount = persons
	if persons != 1 {
		return d, nil
	}

	if d.Faces, err = session.DetectFace(ctx, frame); err != nil {
		return d, fmt.Errorf("detect face: %w", err)
	}
	if d.Hands, err = session.DetectHands(ctx, frame); err != nil {
		return d, fmt.Errorf("detect hands: %w", err)
	}
	if d.Pose, err = session.DetectPose(ctx, frame); err != nil {
		return d, fmt.Errorf("detect pose: %w", err)
	}
	return d, nil
}
