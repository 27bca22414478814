package synthesize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"redub/internal/fileutil"
	"redub/internal/pipeline"
)

// elevenVoices maps friendly names to ElevenLabs premade voice ids.
var elevenVoices = map[string]string{
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"antoni": "ErXwobaYiN019PkySvjV",
	"bella":  "EXAVITQu4vr4xnAvxgoa",
	"josh":   "TxGEqnHWrfWFTfGW9XjX",
	"elli":   "MF3mGh1Yz9iVqkBu3Kfs",
}

type elevenLabs struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (e *elevenLabs) voice(opts pipeline.VoiceOptions) string {
	if v := strings.TrimSpace(opts.Voice); v != "" {
		if id, ok := elevenVoices[strings.ToLower(v)]; ok {
			return id
		}
		return v
	}
	if strings.EqualFold(strings.TrimSpace(opts.VoiceType), "female") {
		return elevenVoices["rachel"]
	}
	return elevenVoices["adam"]
}

func (e *elevenLabs) render(ctx context.Context, c clip) error {
	body, err := json.Marshal(ttsRequest{
		Text:    c.text,
		ModelID: e.model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
			Speed:           c.speed,
		},
	})
	if err != nil {
		return fmt.Errorf("encode tts request: %w", err)
	}
	endpoint := e.baseURL + "/text-to-speech/" + url.PathEscape(c.voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read elevenlabs response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(audio)))
	}
	if len(audio) == 0 {
		return fmt.Errorf("elevenlabs returned no audio")
	}
	return fileutil.WriteFileAtomic(c.dest, audio, os.FileMode(0o644))
}
