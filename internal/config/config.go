// Package config provides configuration types and loading for the agent.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: LLM, Agent, Tools, Transcript, Logs.
type Config struct {
	LLM        LLMConfig        `json:"llm"`
	Agent      AgentConfig      `json:"agent"`
	Tools      ToolsConfig      `json:"tools"`
	Transcript TranscriptConfig `json:"transcript"`
	Logs       LogsConfig       `json:"logs"`
}

// ---------------------------------------------------------------------------
// LLM – per-role model profiles
// ---------------------------------------------------------------------------

// LLMConfig groups the model profiles used by the different agent roles.
// The solver drives the step loop, the analyzer judges step output and
// classifies the challenge, and the preprocessor handles summarization and
// JSON repair.
type LLMConfig struct {
	Solver       LLMProfile `json:"solver"`
	Analyzer     LLMProfile `json:"analyzer"`
	Preprocessor LLMProfile `json:"preprocessor"`
}

// LLMProfile contains the settings for one model endpoint.
type LLMProfile struct {
	Model       string  `json:"model" envconfig:"MODEL"`
	APIKey      string  `json:"apiKey" envconfig:"API_KEY"`
	APIBase     string  `json:"apiBase,omitempty" envconfig:"API_BASE"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// ---------------------------------------------------------------------------
// Agent – solving loop behaviour
// ---------------------------------------------------------------------------

// AgentConfig groups solving-loop and memory settings.
type AgentConfig struct {
	CompressionThreshold int           `json:"compressionThreshold" envconfig:"COMPRESSION_THRESHOLD"`
	RetryInterval        time.Duration `json:"retryInterval" envconfig:"RETRY_INTERVAL"`
	// RepairMaxAttempts caps the JSON repair loop. 0 means retry until the
	// model returns valid JSON, matching the original contract.
	RepairMaxAttempts int  `json:"repairMaxAttempts" envconfig:"REPAIR_MAX_ATTEMPTS"`
	AutoMode          bool `json:"autoMode" envconfig:"AUTO_MODE"`
}

// ---------------------------------------------------------------------------
// Tools – execution backends
// ---------------------------------------------------------------------------

// ToolsConfig contains tool-specific settings.
type ToolsConfig struct {
	SSH            SSHConfig    `json:"ssh"`
	Python         PythonConfig `json:"python"`
	AttachmentsDir string       `json:"attachmentsDir" envconfig:"ATTACHMENTS_DIR"`
}

// SSHConfig contains the remote shell connection settings.
type SSHConfig struct {
	Enabled  bool          `json:"enabled" envconfig:"ENABLED"`
	Host     string        `json:"host" envconfig:"HOST"`
	Port     int           `json:"port" envconfig:"PORT"`
	Username string        `json:"username" envconfig:"USERNAME"`
	Password string        `json:"password" envconfig:"PASSWORD"`
	Timeout  time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// PythonConfig contains local Python execution settings.
type PythonConfig struct {
	Interpreter string        `json:"interpreter" envconfig:"INTERPRETER"`
	Timeout     time.Duration `json:"timeout" envconfig:"TIMEOUT"`
	Remote      bool          `json:"remote" envconfig:"REMOTE"`
}

// ---------------------------------------------------------------------------
// Transcript – per-run audit trail
// ---------------------------------------------------------------------------

// TranscriptConfig configures the SQLite step transcript.
type TranscriptConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Path    string `json:"path" envconfig:"PATH"`
}

// ---------------------------------------------------------------------------
// Logs – log file output
// ---------------------------------------------------------------------------

// LogsConfig configures log output.
type LogsConfig struct {
	Dir     string `json:"dir" envconfig:"DIR"`
	Verbose bool   `json:"verbose" envconfig:"VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Solver: LLMProfile{
				Model:       "openai/gpt-4o",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
			Analyzer: LLMProfile{
				Model:       "openai/gpt-4o",
				MaxTokens:   2048,
				Temperature: 0.2,
			},
			Preprocessor: LLMProfile{
				Model:       "openai/gpt-4o-mini",
				MaxTokens:   2048,
				Temperature: 0,
			},
		},
		Agent: AgentConfig{
			CompressionThreshold: 5,
			RetryInterval:        10 * time.Second,
			RepairMaxAttempts:    0,
			AutoMode:             false,
		},
		Tools: ToolsConfig{
			SSH: SSHConfig{
				Port:    22,
				Timeout: 10 * time.Second,
			},
			Python: PythonConfig{
				Interpreter: "python3",
				Timeout:     30 * time.Second,
			},
			AttachmentsDir: "./attachments",
		},
		Transcript: TranscriptConfig{
			Enabled: true,
			Path:    "~/.buuctf-agent/transcript.db",
		},
		Logs: LogsConfig{
			Dir: "logs",
		},
	}
}
