package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"redub/internal/language"
)

type deeplClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
	Message string `json:"message"`
}

func (c *deeplClient) translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	targetCode, ok := language.DeepLCode(target)
	if !ok {
		return nil, fmt.Errorf("deepl does not support target language %q", target)
	}
	body := deeplRequest{Text: texts, TargetLang: targetCode}
	if code, ok := language.DeepLCode(source); ok {
		// DeepL source codes carry no regional variant.
		body.SourceLang = strings.SplitN(code, "-", 2)[0]
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode deepl request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build deepl request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read deepl response: %w", err)
	}
	var parsed deeplResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := parsed.Message
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("deepl returned %d: %s", resp.StatusCode, detail)
	}
	out := make([]string, 0, len(parsed.Translations))
	for _, t := range parsed.Translations {
		out = append(out, t.Text)
	}
	return out, nil
}
