package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Workflow contains configuration for queue timing and housekeeping.
type Workflow struct {
	QueuePollInterval int `toml:"queue_poll_interval"`
	CleanupInterval   int `toml:"cleanup_interval"`
	CleanupMaxAgeDays int `toml:"cleanup_max_age_days"`
	TaskTimeout       int `toml:"task_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskFailures   bool   `toml:"task_failures"`
	PipelineReady  bool   `toml:"pipeline_ready"`
	QueueDrained   bool   `toml:"queue_drained"`
}

// Transcription configures the speech-to-text provider (OpenAI compatible).
type Transcription struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Translation configures the translation providers.
type Translation struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	DeepLAPIKey    string `toml:"deepl_api_key"`
	DeepLBaseURL   string `toml:"deepl_base_url"`
	BatchSize      int    `toml:"batch_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Synthesis configures the text-to-speech providers.
type Synthesis struct {
	Provider          string `toml:"provider"`
	ElevenLabsAPIKey  string `toml:"elevenlabs_api_key"`
	ElevenLabsBaseURL string `toml:"elevenlabs_base_url"`
	ElevenLabsModel   string `toml:"elevenlabs_model"`
	EdgeTTSBinary     string `toml:"edge_tts_binary"`
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	DefaultVoice      string `toml:"default_voice"`
	MaleVoice         string `toml:"male_voice"`
	FemaleVoice       string `toml:"female_voice"`
	OutputFormat      string `toml:"output_format"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Events configures the optional NATS status fan-out.
type Events struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// Command describes an external program invoked by a task processor.
type Command struct {
	Binary         string   `toml:"binary"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Config encapsulates all configuration values for redub.
//
// Configuration sections by subsystem:
//   - Paths: staging, state and log directories plus the API bind address
//   - Workflow: queue polling, cleanup and task deadlines
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
//   - Transcription, Translation, Synthesis: pipeline providers
//   - Events: NATS status fan-out
//   - Crawl, Upload: external commands for download and republish
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Events        Events        `toml:"events"`
	Crawl         Command       `toml:"crawl"`
	Upload        Command       `toml:"upload"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/redub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	loadDotEnv(filepath.Dir(resolvedPath))

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("redub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath is the SQLite database holding tasks and video status records.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "redub.lock")
}

// SocketPath is the unix socket the daemon serves JSON-RPC on.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "redub.sock")
}

// PIDPath records the daemon process id while it runs.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "redub.pid")
}

// VideoDir returns the per-video working directory under staging.
func (c *Config) VideoDir(videoID string) string {
	return filepath.Join(c.Paths.StagingDir, videoID)
}

// PollInterval returns the queue poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

// CleanupInterval returns how often finished tasks are purged.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Workflow.CleanupInterval) * time.Second
}

// CleanupMaxAge returns the retention window for finished tasks.
func (c *Config) CleanupMaxAge() time.Duration {
	return time.Duration(c.Workflow.CleanupMaxAgeDays) * 24 * time.Hour
}

// TaskTimeout returns the execution deadline applied to every dispatched task.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Workflow.TaskTimeout) * time.Second
}

// FFmpegBinary returns the ffmpeg executable used to combine dubbed audio.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Synthesis.FFmpegBinary); v != "" {
		return v
	}
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
