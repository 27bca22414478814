package pipeline

import (
	"strings"

	"redub/internal/videostatus"
)

// Stage is one phase of the processing pipeline with its progress range
// [Lower, Upper).
type Stage struct {
	Name   string
	Status videostatus.Stage
	Lower  int
	Upper  int
}

var (
	Transcribe = Stage{Name: "transcribe", Status: videostatus.StageTranscribing, Lower: 0, Upper: 40}
	Translate  = Stage{Name: "translate", Status: videostatus.StageTranslating, Lower: 40, Upper: 60}
	Synthesize = Stage{Name: "synthesize", Status: videostatus.StageSynthesizing, Lower: 60, Upper: 80}
	Edit       = Stage{Name: "edit", Status: videostatus.StageEditing, Lower: 80, Upper: 100}
)

var orderedStages = []Stage{Transcribe, Translate, Synthesize, Edit}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return append([]Stage(nil), orderedStages...)
}

// ParseStage resolves a retry step. Both the stage name ("translate") and the
// status name ("translating") are accepted.
func ParseStage(value string) (Stage, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return Stage{}, false
	}
	for _, stage := range orderedStages {
		if normalized == stage.Name || normalized == string(stage.Status) {
			return stage, true
		}
	}
	return Stage{}, false
}

// ShouldRun reports whether stage must execute given the stored progress and
// an optional retry stage. A stage counts as done once progress reaches its
// upper bound; a retry forces the retry stage and everything after it.
func ShouldRun(stage Stage, storedProgress int, retry *Stage) bool {
	if retry != nil && retry.Lower <= stage.Lower {
		return true
	}
	return storedProgress < stage.Upper
}
