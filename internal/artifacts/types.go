// Package artifacts persists the per-stage pipeline outputs of a video as
// JSON documents under <staging_dir>/<videoId>/. A stage that is skipped on
// resume reloads its artifact from here; an absent document is reported as
// services.ErrMissingArtifact.
package artifacts

// Segment is one timed span of recognized speech.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the transcribe stage output.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

// TranslatedSegment pairs a source segment with its translation.
type TranslatedSegment struct {
	ID             int     `json:"id"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	OriginalText   string  `json:"originalText"`
	TranslatedText string  `json:"translatedText"`
}

// Translation is the translate stage output.
type Translation struct {
	Text           string              `json:"text"`
	SourceLanguage string              `json:"sourceLanguage"`
	TargetLanguage string              `json:"targetLanguage"`
	Provider       string              `json:"provider,omitempty"`
	Segments       []TranslatedSegment `json:"segments"`
}

// SynthesizedSegment is one generated audio clip.
type SynthesizedSegment struct {
	ID        int     `json:"id"`
	AudioPath string  `json:"audioPath"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// SynthesisManifest is the synthesize stage output.
type SynthesisManifest struct {
	Provider          string               `json:"provider,omitempty"`
	Voice             string               `json:"voice,omitempty"`
	Segments          []SynthesizedSegment `json:"segments"`
	CombinedAudioPath string               `json:"combinedAudioPath,omitempty"`
	DurationSeconds   float64              `json:"durationSeconds"`
}

// SegmentsFromTranscription converts transcript segments into untranslated
// translation inputs.
func SegmentsFromTranscription(t *Transcription) []TranslatedSegment {
	if t == nil {
		return nil
	}
	out := make([]TranslatedSegment, 0, len(t.Segments))
	for _, seg := range t.Segments {
		out = append(out, TranslatedSegment{
			ID:           seg.ID,
			Start:        seg.Start,
			End:          seg.End,
			OriginalText: seg.Text,
		})
	}
	return out
}
