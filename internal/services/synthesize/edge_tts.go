package synthesize

import (
	"context"
	"fmt"
	"math"
	"strings"

	"redub/internal/pipeline"
	"redub/internal/services"
)

// edgeShortNames maps friendly names to edge-tts voice ids.
var edgeShortNames = map[string]string{
	"guy":         "en-US-GuyNeural",
	"jenny":       "en-US-JennyNeural",
	"aria":        "en-US-AriaNeural",
	"christopher": "en-US-ChristopherNeural",
	"eric":        "en-US-EricNeural",
	"michelle":    "en-US-MichelleNeural",
	"roger":       "en-US-RogerNeural",
	"steffan":     "en-US-SteffanNeural",
	"ryan":        "en-GB-RyanNeural",
	"sonia":       "en-GB-SoniaNeural",
}

type edgeTTS struct {
	binary   string
	male     string
	female   string
	fallback string
	service  *Service
}

func (e *edgeTTS) voice(opts pipeline.VoiceOptions) string {
	if v := strings.TrimSpace(opts.Voice); v != "" {
		if id, ok := edgeShortNames[strings.ToLower(v)]; ok {
			return id
		}
		if strings.Contains(v, "Neural") {
			return v
		}
	}
	switch strings.ToLower(strings.TrimSpace(opts.VoiceType)) {
	case "female":
		return e.female
	case "male":
		return e.male
	}
	return e.fallback
}

func (e *edgeTTS) render(ctx context.Context, c clip) error {
	args := []string{
		"--voice", c.voice,
		"--text", c.text,
		"--rate=" + edgeRate(c.speed),
		"--pitch=" + edgePitch(c.pitch),
		"--write-media", c.dest,
	}
	if err := e.service.runner.Run(ctx, e.binary, args, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "synthesizing", "edge-tts", "", err)
	}
	return nil
}

// edgeRate converts a speed multiplier (1.0 = normal) to a signed percent.
func edgeRate(speed float64) string {
	if speed <= 0 {
		return "+0%"
	}
	return fmt.Sprintf("%+d%%", int(math.Round((speed-1)*100)))
}

// edgePitch converts a pitch offset (-1..1) to a signed Hz shift.
func edgePitch(pitch float64) string {
	return fmt.Sprintf("%+dHz", int(math.Round(pitch*50)))
}
