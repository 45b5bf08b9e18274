package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads settings from the config file, falling back to defaults
// when the file does not exist. Environment variables referenced in the
// file are expanded before parsing.
func Load() (*Settings, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads settings from an explicit path.
func LoadFrom(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), s); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	loadFromEnv(s)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return s, nil
}

// loadFromEnv overrides API keys from the environment so keys never have
// to be written into the file.
func loadFromEnv(s *Settings) {
	for name, p := range s.Providers {
		var envKey string
		switch p.Kind {
		case ProviderGemini:
			envKey = os.Getenv("GEMINI_API_KEY")
		case ProviderAnthropic:
			envKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderDeepseek:
			envKey = os.Getenv("DEEPSEEK_API_KEY")
		case ProviderOpenAICompatible:
			envKey = os.Getenv("OPENAI_API_KEY")
		}
		if envKey != "" && p.APIKey == "" {
			p.APIKey = envKey
			s.Providers[name] = p
		}
	}
}

// GetConfigPath returns the path to the config file.
func GetConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "deskagent", "config.yaml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "deskagent", "config.yaml")
}

// GetConfigDir returns the directory holding the config file, creating
// it if needed.
func GetConfigDir() (string, error) {
	path := GetConfigPath()
	if path == "" {
		return "", fmt.Errorf("could not determine config path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Save writes the settings to the config file atomically. File mode is
// 0600 since provider configs may carry API keys.
func (s *Settings) Save() error {
	return s.SaveTo(GetConfigPath())
}

// SaveTo writes the settings to an explicit path atomically.
func (s *Settings) SaveTo(path string) error {
	if path == "" {
		return fmt.Errorf("could not determine config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// Rename can fail across filesystems; fall back to a direct write.
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
	}
	return nil
}
