// Package config loads the continuity store's configuration surface.
//
// Exactly the fields enumerated in spec §4.1 plus the ambient knobs the
// expanded spec adds (critical tool patterns, logging). No fallbacks or
// automatic discovery beyond what Load documents: the caller names the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

const DefaultPath = "continuity.yaml"

// LogLevel mirrors the three-state append gate from spec §4.1.
type LogLevel string

const (
	LogLevelOff        LogLevel = "off"
	LogLevelJudgment   LogLevel = "judgment"
	LogLevelEverything LogLevel = "everything"
)

type Config struct {
	LogLevel                       LogLevel      `yaml:"log_level" toml:"log_level"`
	StoragePath                    string        `yaml:"storage_path" toml:"storage_path"`
	EnableIntegrityCheck           bool          `yaml:"enable_integrity_check" toml:"enable_integrity_check"`
	BlockOnPersistenceFailure      bool          `yaml:"block_on_persistence_failure" toml:"block_on_persistence_failure"`
	ImplicitResumeThresholdMinutes float64       `yaml:"implicit_resume_threshold_minutes" toml:"implicit_resume_threshold_minutes"`
	CriticalToolPatterns           []string      `yaml:"critical_tool_patterns" toml:"critical_tool_patterns"`
	Logging                        LoggingConfig `yaml:"logging" toml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultCriticalToolPatterns matches spec §4.5's substring classification
// of side-effecting tools; lowercased before comparison by the caller.
func DefaultCriticalToolPatterns() []string {
	return []string{"write", "edit", "delete", "exec", "deploy", "payment", "email", "message"}
}

func defaults() Config {
	return Config{
		LogLevel:                       LogLevelEverything,
		StoragePath:                    "~/.continuity",
		EnableIntegrityCheck:           true,
		BlockOnPersistenceFailure:      false,
		ImplicitResumeThresholdMinutes: 30,
		CriticalToolPatterns:           DefaultCriticalToolPatterns(),
		Logging:                        LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (sniffing YAML vs TOML from its extension; YAML is the
// default for extensionless or unrecognized names) and overlays it onto
// defaults. If the file does not exist and allowMissing is true, the
// defaults are returned after the same normalization (home expansion,
// lowercasing) a loaded file gets.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("config path is required")
	}

	configuration := defaults()

	// #nosec G304 -- config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			configuration.normalize()
			return configuration, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		configuration.normalize()
		return configuration, nil
	}

	if isTOMLPath(trimmedPath) {
		if err := toml.Unmarshal(content, &configuration); err != nil {
			return Config{}, fmt.Errorf("parse toml config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(content, &configuration); err != nil {
			return Config{}, fmt.Errorf("parse yaml config: %w", err)
		}
	}
	configuration.normalize()
	return configuration, nil
}

func isTOMLPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func (configuration *Config) normalize() {
	configuration.StoragePath = ExpandHome(strings.TrimSpace(configuration.StoragePath))
	configuration.Logging.Level = strings.ToLower(strings.TrimSpace(configuration.Logging.Level))
	configuration.Logging.Format = strings.ToLower(strings.TrimSpace(configuration.Logging.Format))
	if len(configuration.CriticalToolPatterns) == 0 {
		configuration.CriticalToolPatterns = DefaultCriticalToolPatterns()
	}
	normalized := make([]string, 0, len(configuration.CriticalToolPatterns))
	for _, pattern := range configuration.CriticalToolPatterns {
		trimmed := strings.ToLower(strings.TrimSpace(pattern))
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	configuration.CriticalToolPatterns = normalized
}

// ExpandHome expands a leading "~" to the current user's home directory,
// per spec §6.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		// "~otheruser/..." is not resolved; return as-is.
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
