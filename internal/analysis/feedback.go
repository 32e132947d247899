package analysis

import "github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"

const (
	faceExcellent = 80
	faceFair      = 50
	handGood      = 50
	poseGood      = 70
)

const (
	msgFaceExcellent = "Excellent face visibility and eye contact."
	msgFaceFair      = "Face detected in most frames. Try to keep your face visible."
	msgFacePoor      = "Face rarely detected. Please face the camera."
	msgHandGood      = "Good use of hand gestures."
	msgHandPoor      = "Try to use your hands more for expressive communication."
	msgPoseGood      = "Confident posture detected."
	msgPosePoor      = "Work on maintaining a confident posture."
)

// Feedback returns one line per signal, in face, hand, pose order.
func Feedback(s entity.ScoreSet) []string {
	lines := make([]string, 0, 3)

	switch {
	case s.Face > faceExcellent:
		lines = append(lines, msgFaceExcellent)
	case s.Face > faceFair:
		lines = append(lines, msgFaceFair)
	default:
		lines = append(lines, msgFacePoor)
	}

	if s.Hand > handGood {
		lines = append(lines, msgHandGood)
	} else {
		lines = append(lines, msgHandPoor)
	}

	if s.Pose > poseGood {
		lines = append(lines, msgPoseGood)
	} else {
		lines = append(lines, msgPosePoor)
	}

	return lines
}
