// Package config loads, normalizes, and validates redub configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY, including values kept in a .env file beside the config.
// Provider API keys are optional at load time; a missing key surfaces as a
// stage failure when that provider is first used.
package config
