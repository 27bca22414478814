package artifacts

import (
	"fmt"
	"strings"
)

// Subtitle styles accepted by RenderTranslationSRT.
const (
	StyleBilingual = "bilingual"
	StyleEnglish   = "english"
	StyleChinese   = "chinese"
)

type srtCue struct {
	start float64
	end   float64
	text  string
}

// RenderSRT renders the transcript as SRT cues numbered from 1.
func RenderSRT(t *Transcription) string {
	if t == nil {
		return ""
	}
	cues := make([]srtCue, 0, len(t.Segments))
	for _, seg := range t.Segments {
		cues = append(cues, srtCue{start: seg.Start, end: seg.End, text: strings.TrimSpace(seg.Text)})
	}
	return renderCues(cues)
}

// RenderTranslationSRT renders translated subtitles. Bilingual puts the
// translation above the original line; english and chinese select the side
// in that language.
func RenderTranslationSRT(t *Translation, style string, targetIsEnglish bool) string {
	if t == nil {
		return ""
	}
	cues := make([]srtCue, 0, len(t.Segments))
	for _, seg := range t.Segments {
		original := strings.TrimSpace(seg.OriginalText)
		translated := strings.TrimSpace(seg.TranslatedText)
		text := translated
		switch strings.ToLower(strings.TrimSpace(style)) {
		case StyleEnglish:
			if !targetIsEnglish {
				text = original
			}
		case StyleChinese:
			if targetIsEnglish {
				text = original
			}
		default:
			if original != "" && original != translated {
				text = translated + "\n" + original
			}
		}
		cues = append(cues, srtCue{start: seg.Start, end: seg.End, text: text})
	}
	return renderCues(cues)
}

func renderCues(cues []srtCue) string {
	var sb strings.Builder
	for i, cue := range cues {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", FormatSRTTimestamp(cue.start), FormatSRTTimestamp(cue.end))
		sb.WriteString(cue.text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSRTTimestamp formats seconds as HH:MM:SS,mmm.
func FormatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	msTotal := int(seconds*1000 + 0.5)
	hours := msTotal / 3_600_000
	msTotal %= 3_600_000
	minutes := msTotal / 60_000
	msTotal %= 60_000
	secs := msTotal / 1_000
	millis := msTotal % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
