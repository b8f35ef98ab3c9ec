// Package util provides utility functions for initialization and configuration.
package util

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/kamikazechaser/common/logg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// envDebug enables debug logging when set
	envDebug = "DEBUG"
	// envDev enables development mode (human-readable logs) when set
	envDev = "DEV"
	// envPrefix is the prefix for environment variables that override config
	envPrefix = "W3TOOLS_"
	// envSeparator is used to split array values in environment variables
	envSeparator = " "
	// envNestedSeparator is used to represent nested config keys in environment variables
	envNestedSeparator = "__"
)

// InitLogger initializes and returns a structured logger based on environment variables.
// DEBUG: enables debug level logging
// DEV: enables debug level logging with human-readable format
func InitLogger() *slog.Logger {
	loggOpts := logg.LoggOpts{
		FormatType: logg.Logfmt,
		LogLevel:   slog.LevelInfo,
	}

	if os.Getenv(envDebug) != "" {
		loggOpts.LogLevel = slog.LevelDebug
	}

	if os.Getenv(envDev) != "" {
		loggOpts.LogLevel = slog.LevelDebug
		loggOpts.FormatType = logg.Human
	}

	return logg.NewLogg(loggOpts)
}

// InitConfig loads configuration from a TOML file and environment variables.
// A missing file is skipped so the CLI can run on flags and environment alone.
// Environment variables prefixed with W3TOOLS_ override file values.
// Nested keys can be specified using double underscores (e.g., W3TOOLS_CHAIN__RPC_ENDPOINT).
// Array values can be specified as space-separated strings.
func InitConfig(lo *slog.Logger, confFilePath string) *koanf.Koanf {
	ko, err := LoadConfig(confFilePath)
	if err != nil {
		lo.Error("failed to load configuration", "file", confFilePath, "error", err)
		os.Exit(1)
	}

	// Print configuration in debug mode
	if os.Getenv(envDebug) != "" {
		ko.Print()
	}

	return ko
}

// LoadConfig is InitConfig without the process exit.
func LoadConfig(confFilePath string) (*koanf.Koanf, error) {
	ko := koanf.New(".")

	if confFilePath != "" {
		err := ko.Load(file.Provider(confFilePath), toml.Parser())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	err := ko.Load(env.ProviderWithValue(envPrefix, ".", func(s string, v string) (string, interface{}) {
		// Convert W3TOOLS_KEY__NESTED to key.nested
		key := strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			envNestedSeparator,
			".",
		)

		// Handle array values (space-separated)
		if strings.Contains(v, envSeparator) {
			return key, strings.Split(v, envSeparator)
		}

		return key, v
	}), nil)
	if err != nil {
		return nil, err
	}

	return ko, nil
}
