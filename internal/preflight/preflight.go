package preflight

import (
	"context"
	"strings"

	"redub/internal/config"
	"redub/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes the applicable preflight checks for the given config.
// Provider checks only run when the provider has a key, so an unconfigured
// optional provider never fails preflight.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	if cfg.Translation.Provider == "openai" && cfg.Translation.APIKey != "" {
		results = append(results, CheckLLM(ctx, "Translation LLM", llm.Config{
			APIKey:  cfg.Translation.APIKey,
			BaseURL: cfg.Translation.BaseURL,
			Model:   cfg.Translation.Model,
		}))
	}
	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		results = append(results, CheckNATS(url))
	}
	return results
}
