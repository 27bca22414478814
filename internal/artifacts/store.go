package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"redub/internal/fileutil"
	"redub/internal/services"
)

// Fixed file names inside a video directory.
const (
	MediaFile          = "video.mp4"
	CoverFile          = "cover.jpg"
	TranscriptFile     = "transcript.json"
	TranscriptSRTFile  = "transcript.srt"
	TranslationFile    = "translation.json"
	TranslationSRTFile = "subtitles.srt"
	SynthesisFile      = "synthesis.json"
	AudioDir           = "audio"
)

// Store reads and writes artifacts below a staging root.
type Store struct {
	root string
}

// NewStore returns a Store rooted at stagingDir.
func NewStore(stagingDir string) *Store {
	return &Store{root: stagingDir}
}

// Root returns the staging root.
func (s *Store) Root() string { return s.root }

// Dir returns the working directory of videoID.
func (s *Store) Dir(videoID string) string {
	return filepath.Join(s.root, strings.TrimSpace(videoID))
}

// MediaPath returns the downloaded source video path.
func (s *Store) MediaPath(videoID string) string {
	return filepath.Join(s.Dir(videoID), MediaFile)
}

// AudioDir returns the directory receiving synthesized clips.
func (s *Store) AudioDir(videoID string) string {
	return filepath.Join(s.Dir(videoID), AudioDir)
}

// Path returns the path of a named artifact for videoID.
func (s *Store) Path(videoID, name string) string {
	return filepath.Join(s.Dir(videoID), name)
}

// SaveTranscription writes transcript.json and its SRT export.
func (s *Store) SaveTranscription(videoID string, t *Transcription) error {
	if t == nil {
		return errors.New("nil transcription")
	}
	if err := fileutil.WriteJSON(s.Path(videoID, TranscriptFile), t); err != nil {
		return fmt.Errorf("save transcription: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.Path(videoID, TranscriptSRTFile), []byte(RenderSRT(t)), 0o644); err != nil {
		return fmt.Errorf("save transcript srt: %w", err)
	}
	return nil
}

// LoadTranscription reads transcript.json.
func (s *Store) LoadTranscription(videoID string) (*Transcription, error) {
	var t Transcription
	if err := s.load(videoID, TranscriptFile, "transcription", "transcribing", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTranslation writes translation.json and the styled subtitle export.
func (s *Store) SaveTranslation(videoID string, t *Translation, style string, targetIsEnglish bool) error {
	if t == nil {
		return errors.New("nil translation")
	}
	if err := fileutil.WriteJSON(s.Path(videoID, TranslationFile), t); err != nil {
		return fmt.Errorf("save translation: %w", err)
	}
	srt := RenderTranslationSRT(t, style, targetIsEnglish)
	if err := fileutil.WriteFileAtomic(s.Path(videoID, TranslationSRTFile), []byte(srt), 0o644); err != nil {
		return fmt.Errorf("save subtitles: %w", err)
	}
	return nil
}

// LoadTranslation reads translation.json.
func (s *Store) LoadTranslation(videoID string) (*Translation, error) {
	var t Translation
	if err := s.load(videoID, TranslationFile, "translation", "translating", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveSynthesis writes synthesis.json.
func (s *Store) SaveSynthesis(videoID string, m *SynthesisManifest) error {
	if m == nil {
		return errors.New("nil synthesis manifest")
	}
	if err := fileutil.WriteJSON(s.Path(videoID, SynthesisFile), m); err != nil {
		return fmt.Errorf("save synthesis: %w", err)
	}
	return nil
}

// LoadSynthesis reads synthesis.json.
func (s *Store) LoadSynthesis(videoID string) (*SynthesisManifest, error) {
	var m SynthesisManifest
	if err := s.load(videoID, SynthesisFile, "synthesis", "synthesizing", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) load(videoID, name, label, retryStage string, v any) error {
	err := fileutil.ReadJSON(s.Path(videoID, name), v)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return services.Wrap(
			services.ErrMissingArtifact,
			"",
			"",
			fmt.Sprintf("%s artifact missing for video %s; retry from %s", label, videoID, retryStage),
			nil,
		)
	}
	return fmt.Errorf("load %s: %w", label, err)
}
