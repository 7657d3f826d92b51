package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".buuctf-agent"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
// BUUCTF_CONFIG overrides the default ~/.buuctf-agent/config.json location.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("BUUCTF_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults. A missing file is not an error;
// the defaults are used and env vars still apply.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Override with environment variables for each group.
	envconfig.Process("BUUCTF_LLM_SOLVER", &cfg.LLM.Solver)
	envconfig.Process("BUUCTF_LLM_ANALYZER", &cfg.LLM.Analyzer)
	envconfig.Process("BUUCTF_LLM_PREPROCESSOR", &cfg.LLM.Preprocessor)
	envconfig.Process("BUUCTF_AGENT", &cfg.Agent)
	envconfig.Process("BUUCTF_TOOLS", &cfg.Tools)
	envconfig.Process("BUUCTF_TOOLS_SSH", &cfg.Tools.SSH)
	envconfig.Process("BUUCTF_TOOLS_PYTHON", &cfg.Tools.Python)
	envconfig.Process("BUUCTF_TRANSCRIPT", &cfg.Transcript)
	envconfig.Process("BUUCTF_LOGS", &cfg.Logs)

	// Fallback for API keys: any profile without a key inherits OPENAI_API_KEY.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for _, p := range []*LLMProfile{&cfg.LLM.Solver, &cfg.LLM.Analyzer, &cfg.LLM.Preprocessor} {
			if p.APIKey == "" {
				p.APIKey = key
			}
		}
	}

	if p, err := expandHome(cfg.Transcript.Path); err == nil {
		cfg.Transcript.Path = p
	}
	if p, err := expandHome(cfg.Tools.AttachmentsDir); err == nil {
		cfg.Tools.AttachmentsDir = p
	}

	if cfg.Agent.CompressionThreshold <= 0 {
		cfg.Agent.CompressionThreshold = 5
	}
	if cfg.Agent.RetryInterval <= 0 {
		cfg.Agent.RetryInterval = DefaultConfig().Agent.RetryInterval
	}
	if cfg.Tools.Python.Interpreter == "" {
		cfg.Tools.Python.Interpreter = "python3"
	}
	if cfg.Tools.SSH.Port <= 0 {
		cfg.Tools.SSH.Port = 22
	}

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
