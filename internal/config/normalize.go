package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv pulls provider keys from .env files next to the config and in the
// working directory. Variables already present in the environment win.
func loadDotEnv(configDir string) {
	candidates := []string{".env"}
	if strings.TrimSpace(configDir) != "" {
		candidates = append([]string{filepath.Join(configDir, ".env")}, candidates...)
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeNotifications()
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeSynthesis()
	c.normalizeEvents()
	c.normalizeCommands()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.CleanupInterval <= 0 {
		c.Workflow.CleanupInterval = defaultCleanupInterval
	}
	if c.Workflow.CleanupMaxAgeDays <= 0 {
		c.Workflow.CleanupMaxAgeDays = defaultCleanupMaxAgeDays
	}
	if c.Workflow.TaskTimeout <= 0 {
		c.Workflow.TaskTimeout = defaultTaskTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = envValue("NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = 10
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = envValue("OPENAI_API_KEY")
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(c.Transcription.Model) == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.Provider = strings.ToLower(strings.TrimSpace(c.Translation.Provider))
	if c.Translation.Provider == "" {
		c.Translation.Provider = defaultTranslationProvider
	}
	c.Translation.APIKey = strings.TrimSpace(c.Translation.APIKey)
	if c.Translation.APIKey == "" {
		c.Translation.APIKey = envValue("OPENAI_API_KEY")
	}
	c.Translation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Translation.BaseURL), "/")
	if c.Translation.BaseURL == "" {
		c.Translation.BaseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(c.Translation.Model) == "" {
		c.Translation.Model = defaultTranslationModel
	}
	c.Translation.DeepLAPIKey = strings.TrimSpace(c.Translation.DeepLAPIKey)
	if c.Translation.DeepLAPIKey == "" {
		c.Translation.DeepLAPIKey = envValue("DEEPL_API_KEY")
	}
	c.Translation.DeepLBaseURL = strings.TrimRight(strings.TrimSpace(c.Translation.DeepLBaseURL), "/")
	if c.Translation.DeepLBaseURL == "" {
		c.Translation.DeepLBaseURL = defaultDeepLBaseURL
	}
	if c.Translation.BatchSize <= 0 {
		c.Translation.BatchSize = defaultTranslationBatchSize
	}
	if c.Translation.TimeoutSeconds <= 0 {
		c.Translation.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Provider = strings.ToLower(strings.TrimSpace(c.Synthesis.Provider))
	if c.Synthesis.Provider == "" {
		c.Synthesis.Provider = defaultSynthesisProvider
	}
	c.Synthesis.ElevenLabsAPIKey = strings.TrimSpace(c.Synthesis.ElevenLabsAPIKey)
	if c.Synthesis.ElevenLabsAPIKey == "" {
		c.Synthesis.ElevenLabsAPIKey = envValue("ELEVENLABS_API_KEY")
	}
	c.Synthesis.ElevenLabsBaseURL = strings.TrimRight(strings.TrimSpace(c.Synthesis.ElevenLabsBaseURL), "/")
	if c.Synthesis.ElevenLabsBaseURL == "" {
		c.Synthesis.ElevenLabsBaseURL = defaultElevenLabsBaseURL
	}
	if strings.TrimSpace(c.Synthesis.ElevenLabsModel) == "" {
		c.Synthesis.ElevenLabsModel = defaultElevenLabsModel
	}
	if strings.TrimSpace(c.Synthesis.EdgeTTSBinary) == "" {
		c.Synthesis.EdgeTTSBinary = defaultEdgeTTSBinary
	}
	if strings.TrimSpace(c.Synthesis.MaleVoice) == "" {
		c.Synthesis.MaleVoice = defaultMaleVoice
	}
	if strings.TrimSpace(c.Synthesis.FemaleVoice) == "" {
		c.Synthesis.FemaleVoice = defaultFemaleVoice
	}
	if strings.TrimSpace(c.Synthesis.DefaultVoice) == "" {
		c.Synthesis.DefaultVoice = c.Synthesis.FemaleVoice
	}
	c.Synthesis.OutputFormat = strings.ToLower(strings.TrimSpace(c.Synthesis.OutputFormat))
	if c.Synthesis.OutputFormat == "" {
		c.Synthesis.OutputFormat = defaultOutputFormat
	}
	if c.Synthesis.TimeoutSeconds <= 0 {
		c.Synthesis.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeEvents() {
	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	if c.Events.NATSURL == "" {
		c.Events.NATSURL = envValue("NATS_URL")
	}
	c.Events.Subject = strings.TrimSpace(c.Events.Subject)
	if c.Events.Subject == "" {
		c.Events.Subject = defaultEventsSubject
	}
}

func (c *Config) normalizeCommands() {
	c.Crawl.Binary = strings.TrimSpace(c.Crawl.Binary)
	if c.Crawl.Binary == "" {
		c.Crawl.Binary = defaultCrawlBinary
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		c.Crawl.TimeoutSeconds = defaultCrawlTimeout
	}
	c.Upload.Binary = strings.TrimSpace(c.Upload.Binary)
	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = defaultUploadTimeout
	}
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
