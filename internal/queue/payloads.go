package queue

// CrawlOptions tune a download.
type CrawlOptions struct {
	DownloadCover bool   `json:"downloadCover,omitempty"`
	OutputDir     string `json:"outputDir,omitempty"`
}

// CrawlPayload is the payload of a crawl task.
type CrawlPayload struct {
	URL     string       `json:"url"`
	Options CrawlOptions `json:"options"`
}

// ProcessOptions carry the per-run pipeline parameters.
type ProcessOptions struct {
	RetryFromStep       string  `json:"retryFromStep,omitempty"`
	SourceLanguage      string  `json:"sourceLanguage,omitempty"`
	TargetLanguage      string  `json:"targetLanguage,omitempty"`
	TranslationProvider string  `json:"translationProvider,omitempty"`
	SynthesisProvider   string  `json:"synthesisProvider,omitempty"`
	Voice               string  `json:"voice,omitempty"`
	VoiceType           string  `json:"voiceType,omitempty"`
	Speed               float64 `json:"speed,omitempty"`
	Pitch               float64 `json:"pitch,omitempty"`
	CombineAudio        bool    `json:"combineAudio,omitempty"`
	SubtitleStyle       string  `json:"subtitleStyle,omitempty"`
	Prompt              string  `json:"prompt,omitempty"`
}

// ProcessPayload is the payload of a process task.
type ProcessPayload struct {
	VideoID string         `json:"videoId"`
	Options ProcessOptions `json:"options"`
}

// UploadMetadata describes the republished video.
type UploadMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category,omitempty"`
	Privacy     string   `json:"privacy,omitempty"`
}

// UploadPayload is the payload of an upload task.
type UploadPayload struct {
	VideoID  string         `json:"videoId"`
	Metadata UploadMetadata `json:"metadata"`
	RemoteID string         `json:"remoteId,omitempty"`
}
