package analysis

import (
	"math"

	"github.com/fiapx/fiapx-nonverbal-service/internal/domain/entity"
)

// Aggregate reduces frame records to percentage scores. Every record counts in
// the denominator, including frames the single-person gate blanked out.
// Per-signal scores truncate; the overall score is the mean of the three,
// rounded half away from zero.
func Aggregate(records []entity.FrameRecord, anyPerson bool) (entity.ScoreSet, error) {
	if len(records) == 0 {
		return entity.ScoreSet{}, ErrNoFramesAnalyzed
	}
	if !anyPerson {
		return entity.ScoreSet{}, ErrNoPersonDetected
	}

	var faces, hands, poses int
	for _, r := range records {
		if r.FaceDetected {
			faces++
		}
		if r.HandsDetected {
			hands++
		}
		if r.PoseDetected {
			poses++
		}
	}

	n := len(records)
	s := entity.ScoreSet{
		Face: percent(faces, n),
		Hand: percent(hands, n),
		Pose: percent(poses, n),
	}
	s.Overall = int(math.Round(float64(s.Face+s.Hand+s.Pose) / 3))
	return s, nil
}

func percent(count, total int) int {
	return 100 * count / total
}
