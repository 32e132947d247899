package entity

import (
	"encoding/json"
	"fmt"
)

// Detection is what the perception collaborators reported for one frame.
// Faces, Hands and Pose are only meaningful when PersonCount is 1.
type Detection struct {
	PersonCount int
	Faces       int
	Hands       int
	Pose        bool
}

// FrameRecord holds the per-frame signals that count toward scoring.
type FrameRecord struct {
	FaceDetected  bool
	HandsDetected bool
	PoseDetected  bool
}

// ScoreSet holds integer percentages in [0,100].
type ScoreSet struct {
	Overall int
	Face    int
	Hand    int
	Pose    int
}

type AnalysisStatus string

const (
	AnalysisStatusSuccess AnalysisStatus = "success"
	AnalysisStatusError   AnalysisStatus = "error"
)

const successMessage = "Analysis completed successfully."

// AnalysisResult is the terminal output of one pipeline run: either scores with
// feedback, or a failure message. Use NewSuccessResult / NewFailureResult.
type AnalysisResult struct {
	Status         AnalysisStatus
	Message        string
	Scores         ScoreSet
	Feedback       []string
	FramesAnalyzed int
}

func NewSuccessResult(scores ScoreSet, feedback []string, framesAnalyzed int) AnalysisResult {
	fb := make([]string, len(feedback))
	copy(fb, feedback)
	return AnalysisResult{
		Status:         AnalysisStatusSuccess,
		Message:        successMessage,
		Scores:         scores,
		Feedback:       fb,
		FramesAnalyzed: framesAnalyzed,
	}
}

func NewFailureResult(message string) AnalysisResult {
	return AnalysisResult{Status: AnalysisStatusError, Message: message}
}

func (r AnalysisResult) Succeeded() bool {
	return r.Status == AnalysisStatusSuccess
}

// resultJSON is the flat wire shape shared by the CLI, the status queue and
// the stored report.
type resultJSON struct {
	Status         AnalysisStatus `json:"status"`
	Message        string         `json:"message"`
	OverallScore   *int           `json:"overallScore,omitempty"`
	FaceScore      *int           `json:"faceScore,omitempty"`
	HandScore      *int           `json:"handScore,omitempty"`
	PoseScore      *int           `json:"poseScore,omitempty"`
	Feedback       *[]string      `json:"feedback,omitempty"`
	FramesAnalyzed *int           `json:"framesAnalyzed,omitempty"`
}

func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{Status: r.Status, Message: r.Message}
	if r.Succeeded() {
		s := r.Scores
		frames := r.FramesAnalyzed
		out.OverallScore = &s.Overall
		out.FaceScore = &s.Face
		out.HandScore = &s.Hand
		out.PoseScore = &s.Pose
		feedback := r.Feedback
		if feedback == nil {
			feedback = []string{}
		}
		out.Feedback = &feedback
		out.FramesAnalyzed = &frames
	}
	return json.Marshal(out)
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case AnalysisStatusError:
		*r = NewFailureResult(in.Message)
	case AnalysisStatusSuccess:
		var scores ScoreSet
		scores.Overall = deref(in.OverallScore)
		scores.Face = deref(in.FaceScore)
		scores.Hand = deref(in.HandScore)
		scores.Pose = deref(in.PoseScore)
		var feedback []string
		if in.Feedback != nil {
			feedback = *in.Feedback
		}
		*r = NewSuccessResult(scores, feedback, deref(in.FramesAnalyzed))
		if in.Message != "" {
			r.Message = in.Message
		}
	default:
		return fmt.Errorf("unknown analysis status %q", in.Status)
	}
	return nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
