package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTranslation() error {
	switch c.Translation.Provider {
	case "openai", "deepl":
	default:
		return fmt.Errorf("translation.provider: unsupported value %q (expected openai or deepl)", c.Translation.Provider)
	}
	if c.Translation.BatchSize > 50 {
		return errors.New("translation.batch_size must be 50 or fewer")
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	switch c.Synthesis.Provider {
	case "elevenlabs", "edge-tts":
	default:
		return fmt.Errorf("synthesis.provider: unsupported value %q (expected elevenlabs or edge-tts)", c.Synthesis.Provider)
	}
	return nil
}
