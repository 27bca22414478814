package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"redub/internal/artifacts"
	"redub/internal/language"
	"redub/internal/services"
	"redub/internal/videostatus"
)

func (c *Controller) transcribe(ctx context.Context, r *run) error {
	mediaPath := c.artifacts.MediaPath(r.videoID)
	if info, err := os.Stat(mediaPath); err != nil || info.IsDir() {
		return services.Wrap(services.ErrValidation, Transcribe.Name, "locate media",
			fmt.Sprintf("source video not found at %s; crawl the video first", mediaPath), nil)
	}
	if err := c.advance(ctx, r, videostatus.StageTranscribing, Transcribe.Lower+5, "preparing transcription"); err != nil {
		return err
	}

	result, err := c.transcriber.Transcribe(ctx, TranscribeRequest{
		VideoID:   r.videoID,
		MediaPath: mediaPath,
		Language:  language.TranscriptionHint(r.options.TargetLanguage),
		Prompt:    r.options.Prompt,
	})
	if err != nil {
		return services.Wrap(services.ErrCollaborator, Transcribe.Name, "transcribe audio", "", err)
	}
	if result == nil {
		return services.Wrap(services.ErrCollaborator, Transcribe.Name, "transcribe audio", "transcriber returned no result", nil)
	}
	if err := c.artifacts.SaveTranscription(r.videoID, result); err != nil {
		return err
	}
	r.transcript = result
	return c.advance(ctx, r, videostatus.StageTranscribing, Transcribe.Upper-5,
		fmt.Sprintf("transcription saved (%d segments)", len(result.Segments)))
}

func (c *Controller) translate(ctx context.Context, r *run) error {
	if r.transcript == nil || len(r.transcript.Segments) == 0 {
		return services.Wrap(services.ErrValidation, Translate.Name, "prepare segments",
			fmt.Sprintf("transcription for video %s is empty; retry from transcribing", r.videoID), nil)
	}
	if err := c.advance(ctx, r, videostatus.StageTranslating, Translate.Lower, "translating subtitles"); err != nil {
		return err
	}

	inputs := artifacts.SegmentsFromTranscription(r.transcript)
	batchSize := c.defaults.BatchSize
	batches := (len(inputs) + batchSize - 1) / batchSize
	span := Translate.Upper - Translate.Lower - 1
	translated := make([]artifacts.TranslatedSegment, 0, len(inputs))

	for i := 0; i < batches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(inputs))
		batch := inputs[start:end]

		result, err := c.translator.Translate(ctx, TranslateRequest{
			VideoID:        r.videoID,
			Segments:       batch,
			SourceLanguage: r.options.SourceLanguage,
			TargetLanguage: r.options.TargetLanguage,
			Provider:       r.options.TranslationProvider,
			Prompt:         r.options.Prompt,
		})
		if err != nil {
			return services.Wrap(services.ErrCollaborator, Translate.Name, "translate batch", "", err)
		}
		if result == nil || len(result.Segments) != len(batch) {
			got := 0
			if result != nil {
				got = len(result.Segments)
			}
			return services.Wrap(services.ErrCollaborator, Translate.Name, "translate batch",
				fmt.Sprintf("translator returned %d segments for %d inputs", got, len(batch)), nil)
		}
		for j, seg := range batch {
			seg.TranslatedText = strings.TrimSpace(result.Segments[j].TranslatedText)
			translated = append(translated, seg)
		}

		progress := Translate.Lower + span*(i+1)/batches
		message := fmt.Sprintf("translated %d/%d segments", len(translated), len(inputs))
		if err := c.advance(ctx, r, videostatus.StageTranslating, progress, message); err != nil {
			return err
		}
	}

	texts := make([]string, 0, len(translated))
	for _, seg := range translated {
		texts = append(texts, seg.TranslatedText)
	}
	translation := &artifacts.Translation{
		Text:           strings.Join(texts, "\n"),
		SourceLanguage: r.options.SourceLanguage,
		TargetLanguage: r.options.TargetLanguage,
		Provider:       r.options.TranslationProvider,
		Segments:       translated,
	}
	if err := c.artifacts.SaveTranslation(r.videoID, translation, r.options.SubtitleStyle, language.IsEnglish(r.options.TargetLanguage)); err != nil {
		return err
	}
	r.translation = translation
	return nil
}

func (c *Controller) synthesize(ctx context.Context, r *run) error {
	if r.translation == nil || len(r.translation.Segments) == 0 {
		return services.Wrap(services.ErrValidation, Synthesize.Name, "prepare segments",
			fmt.Sprintf("translation for video %s is empty; retry from translating", r.videoID), nil)
	}
	if err := c.advance(ctx, r, videostatus.StageSynthesizing, Synthesize.Lower, "generating speech"); err != nil {
		return err
	}

	manifest, err := c.synthesizer.Synthesize(ctx, SynthesisRequest{
		VideoID:        r.videoID,
		Segments:       r.translation.Segments,
		TargetLanguage: r.options.TargetLanguage,
		Provider:       r.options.SynthesisProvider,
		Voice: VoiceOptions{
			Voice:     r.options.Voice,
			VoiceType: r.options.VoiceType,
			Speed:     r.options.Speed,
			Pitch:     r.options.Pitch,
		},
		OutputDir:    c.artifacts.AudioDir(r.videoID),
		CombineAudio: r.options.CombineAudio,
	})
	if err != nil {
		return services.Wrap(services.ErrCollaborator, Synthesize.Name, "synthesize speech", "", err)
	}
	if manifest == nil {
		return services.Wrap(services.ErrCollaborator, Synthesize.Name, "synthesize speech", "synthesizer returned no manifest", nil)
	}
	if err := c.artifacts.SaveSynthesis(r.videoID, manifest); err != nil {
		return err
	}
	r.synthesis = manifest
	return c.advance(ctx, r, videostatus.StageSynthesizing, Synthesize.Upper-1,
		fmt.Sprintf("speech generated (%d clips)", len(manifest.Segments)))
}

// edit marks the assembly stage. Muxing the dub into the video is done
// outside the daemon.
func (c *Controller) edit(ctx context.Context, r *run) error {
	return c.advance(ctx, r, videostatus.StageEditing, Edit.Lower, "assembling output")
}
