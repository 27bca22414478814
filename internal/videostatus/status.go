// Package videostatus persists the externally visible stage and progress
// record of each video. Records are merge-patched, never replaced; stage
// policy lives in the pipeline package.
package videostatus

import (
	"strings"
	"time"
)

// Stage is the user-facing phase a video is in.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageDownloading        Stage = "downloading"
	StageTranscribing       Stage = "transcribing"
	StageTranslating        Stage = "translating"
	StageSynthesizing       Stage = "synthesizing"
	StageEditing            Stage = "editing"
	StageAwaitingNextAction Stage = "awaiting-next-action"
	StageUploading          Stage = "uploading"
	StageCompleted          Stage = "completed"
	StageError              Stage = "error"
)

var allStages = []Stage{
	StageIdle,
	StageDownloading,
	StageTranscribing,
	StageTranslating,
	StageSynthesizing,
	StageEditing,
	StageAwaitingNextAction,
	StageUploading,
	StageCompleted,
	StageError,
}

// ParseStage converts a string into a Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range allStages {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// Status is the per-video progress record.
type Status struct {
	VideoID   string     `json:"videoId"`
	Stage     Stage      `json:"stage"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	Error     string     `json:"error,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Patch is a merge patch; nil fields are left untouched.
type Patch struct {
	Stage        *Stage     `json:"stage,omitempty"`
	Progress     *int       `json:"progress,omitempty"`
	Message      *string    `json:"message,omitempty"`
	Error        *string    `json:"error,omitempty"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	ClearEndTime bool       `json:"clearEndTime,omitempty"`
}

// StagePatch sets stage, progress, and message in one patch.
func StagePatch(stage Stage, progress int, message string) Patch {
	return Patch{Stage: &stage, Progress: &progress, Message: &message}
}

// Apply merges p onto s.
func (p Patch) Apply(s *Status) {
	if p.Stage != nil {
		s.Stage = *p.Stage
	}
	if p.Progress != nil {
		s.Progress = clampProgress(*p.Progress)
	}
	if p.Message != nil {
		s.Message = *p.Message
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	if p.StartTime != nil {
		t := p.StartTime.UTC()
		s.StartTime = &t
	}
	if p.ClearEndTime {
		s.EndTime = nil
	}
	if p.EndTime != nil {
		t := p.EndTime.UTC()
		s.EndTime = &t
	}
}

func newStatus(videoID string) *Status {
	return &Status{VideoID: videoID, Stage: StageIdle}
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
