package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Loader merges configuration from an optional TOML file and
// environment variables. Tests can override Lookup to inject
// deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load builds the configuration: defaults, then the TOML file at
// configFile (skipped silently when configFile is empty and
// VOICESCREEN_CONFIG_FILE is unset), then VOICESCREEN_* environment
// overrides, then validation.
func (l Loader) Load(configFile string) (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Default()

	explicit := configFile != ""
	if !explicit {
		if v, ok := l.Lookup("VOICESCREEN_CONFIG_FILE"); ok && strings.TrimSpace(v) != "" {
			configFile = strings.TrimSpace(v)
			explicit = true
		}
	}
	if explicit {
		if err := applyTOMLFile(configFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "VOICESCREEN_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "VOICESCREEN_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "VOICESCREEN_ENGINE", &cfg.Engine)
	overrideString(l.Lookup, "VOICESCREEN_MODEL_PATH", &cfg.ModelPath)
	overrideString(l.Lookup, "VOICESCREEN_MODEL_URL", &cfg.ModelURL)
	// MODEL_URL is honored for parity with earlier deployments.
	if cfg.ModelURL == "" {
		overrideString(l.Lookup, "MODEL_URL", &cfg.ModelURL)
	}
	overrideString(l.Lookup, "VOICESCREEN_MODEL_AUTH_TOKEN", &cfg.ModelAuthToken)
	overrideString(l.Lookup, "VOICESCREEN_MODEL_DIR", &cfg.ModelDir)
	overrideString(l.Lookup, "VOICESCREEN_ONNX_MODEL_PATH", &cfg.ONNXModelPath)
	overrideString(l.Lookup, "VOICESCREEN_HISTORY_PATH", &cfg.HistoryPath)
	if err := overrideInt64(l.Lookup, "VOICESCREEN_MAX_UPLOAD_BYTES", &cfg.MaxUploadBytes); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyTOMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: file %s does not exist", path)
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt64(lookup func(string) (string, bool), key string, target *int64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
