package config

const (
	defaultStagingDir           = "~/.local/share/redub/staging"
	defaultStateDir             = "~/.local/share/redub"
	defaultLogDir               = "~/.local/share/redub/logs"
	defaultAPIBind              = "127.0.0.1:7611"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultQueuePollInterval    = 3
	defaultCleanupInterval      = 3600
	defaultCleanupMaxAgeDays    = 7
	defaultTaskTimeout          = 7200
	defaultOpenAIBaseURL        = "https://api.openai.com/v1"
	defaultTranscriptionModel   = "whisper-1"
	defaultTranslationModel     = "gpt-4o-mini"
	defaultTranslationProvider  = "openai"
	defaultTranslationBatchSize = 5
	defaultDeepLBaseURL         = "https://api-free.deepl.com/v2"
	defaultSynthesisProvider    = "edge-tts"
	defaultElevenLabsBaseURL    = "https://api.elevenlabs.io/v1"
	defaultElevenLabsModel      = "eleven_multilingual_v2"
	defaultEdgeTTSBinary        = "edge-tts"
	defaultMaleVoice            = "en-US-GuyNeural"
	defaultFemaleVoice          = "en-US-JennyNeural"
	defaultOutputFormat         = "mp3"
	defaultProviderTimeout      = 120
	defaultEventsSubject        = "redub.video.status"
	defaultCrawlBinary          = "yt-dlp"
	defaultCrawlTimeout         = 900
	defaultUploadTimeout        = 1800
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			CleanupInterval:   defaultCleanupInterval,
			CleanupMaxAgeDays: defaultCleanupMaxAgeDays,
			TaskTimeout:       defaultTaskTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			TaskFailures:   true,
			PipelineReady:  true,
			QueueDrained:   false,
		},
		Transcription: Transcription{
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultTranscriptionModel,
			Temperature:    0.2,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Translation: Translation{
			Provider:       defaultTranslationProvider,
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultTranslationModel,
			DeepLBaseURL:   defaultDeepLBaseURL,
			BatchSize:      defaultTranslationBatchSize,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Synthesis: Synthesis{
			Provider:          defaultSynthesisProvider,
			ElevenLabsBaseURL: defaultElevenLabsBaseURL,
			ElevenLabsModel:   defaultElevenLabsModel,
			EdgeTTSBinary:     defaultEdgeTTSBinary,
			DefaultVoice:      defaultFemaleVoice,
			MaleVoice:         defaultMaleVoice,
			FemaleVoice:       defaultFemaleVoice,
			OutputFormat:      defaultOutputFormat,
			TimeoutSeconds:    defaultProviderTimeout,
		},
		Events: Events{
			Subject: defaultEventsSubject,
		},
		Crawl: Command{
			Binary:         defaultCrawlBinary,
			TimeoutSeconds: defaultCrawlTimeout,
		},
		Upload: Command{
			TimeoutSeconds: defaultUploadTimeout,
		},
	}
}
