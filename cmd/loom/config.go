package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the loom configuration file
// (~/.config/loom/config.yaml). All fields are pointers or strings so
// "not set" is distinguishable from zero values.
type Config struct {
	Model     string `yaml:"model"`
	Tokenizer string `yaml:"tokenizer"`

	// Generation defaults
	Strategy    string   `yaml:"strategy"`
	BeamWidth   *int64   `yaml:"beam_width"`
	MaxLen      *int64   `yaml:"max_len"`
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loom", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or cannot be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyCommonConfig applies config file defaults to shared variables
// when the corresponding CLI flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.Tokenizer != "" && !c.IsSet("tokenizer") {
		tokenizerPath = cfg.Tokenizer
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyGenerateConfig applies generation defaults from the config file.
func applyGenerateConfig(c *cli.Command, cfg Config,
	strategy *string, beamWidth, maxLen *int64, temperature *float64, topK *int64, topP *float64,
) {
	if cfg.Strategy != "" && !c.IsSet("strategy") {
		*strategy = cfg.Strategy
	}
	if cfg.BeamWidth != nil && !c.IsSet("beam-width") {
		*beamWidth = *cfg.BeamWidth
	}
	if cfg.MaxLen != nil && !c.IsSet("max-len") {
		*maxLen = *cfg.MaxLen
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		*temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		*topP = *cfg.TopP
	}
}

// applyServeConfig applies server defaults from the config file.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
