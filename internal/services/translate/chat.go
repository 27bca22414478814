package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"redub/internal/language"
	"redub/internal/services/llm"
)

// maxLineRunes bounds each translated line so dubbed speech fits the
// original segment timing.
const maxLineRunes = 80

const systemPrompt = `You are a professional subtitle translator. Translate each input line into the target language, keeping the tone and style natural for spoken dialogue. Keep every translated line within %d characters including punctuation; condense the meaning if needed. Return JSON only, in the form {"translations": ["..."]}, with exactly one entry per input line in the same order.`

type chatRequest struct {
	Source       string   `json:"sourceLanguage"`
	Target       string   `json:"targetLanguage"`
	Instructions string   `json:"instructions,omitempty"`
	Lines        []string `json:"lines"`
}

type chatResponse struct {
	Translations []string `json:"translations"`
}

func (s *Service) translateChat(ctx context.Context, texts []string, source, target, prompt string) ([]string, error) {
	payload, err := json.Marshal(chatRequest{
		Source:       language.DisplayName(source),
		Target:       language.DisplayName(target),
		Instructions: strings.TrimSpace(prompt),
		Lines:        texts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode translation request: %w", err)
	}
	content, err := s.chat.CompleteJSON(ctx, fmt.Sprintf(systemPrompt, maxLineRunes), string(payload))
	if err != nil {
		return nil, err
	}
	var parsed chatResponse
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("parse translation payload: %w", err)
	}
	return parsed.Translations, nil
}
