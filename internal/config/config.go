// Package config holds the service configuration, merged from an
// optional TOML file and VOICESCREEN_* environment overrides.
package config

import "fmt"

// Defaults.
const (
	DefaultListenAddr     = ":8000"
	DefaultEngine         = EngineAuto
	DefaultModelDir       = "models"
	DefaultMaxUploadBytes = 64 << 20 // 64 MB of audio per request
)

// Engine backend selectors.
const (
	EngineAuto = "auto"
	EngineTCN  = "tcn"
	EngineONNX = "onnx"
	EngineStub = "stub"
)

// Config holds the service configuration.
type Config struct {
	ListenAddr     string `toml:"listen_addr"`
	LogLevel       string `toml:"log_level"`
	Engine         string `toml:"engine"`
	ModelPath      string `toml:"model_path"`
	ModelURL       string `toml:"model_url"`
	ModelAuthToken string `toml:"model_auth_token"`
	ModelDir       string `toml:"model_dir"`
	ONNXModelPath  string `toml:"onnx_model_path"`
	HistoryPath    string `toml:"history_path"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		Engine:         DefaultEngine,
		ModelDir:       DefaultModelDir,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Validate checks the merged configuration.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	switch c.Engine {
	case EngineAuto, EngineTCN, EngineONNX, EngineStub:
	default:
		return fmt.Errorf("config: unknown engine %q (want %s, %s, %s or %s)",
			c.Engine, EngineAuto, EngineTCN, EngineONNX, EngineStub)
	}
	if c.Engine == EngineONNX && c.ONNXModelPath == "" {
		return fmt.Errorf("config: engine %q requires onnx_model_path", EngineONNX)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
